// Copyright 2023 The Marmot Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
memory_pages = 256
debug = true
disk_dir = "/srv/disk"

[[disk]]
name = "sample.txt"
path = "/tmp/sample.txt"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.MemoryPages)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/srv/disk", cfg.DiskDir)
	require.Len(t, cfg.Disk, 1)
	assert.Equal(t, "sample.txt", cfg.Disk[0].Name)
	assert.Equal(t, "/tmp/sample.txt", cfg.Disk[0].Path)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
