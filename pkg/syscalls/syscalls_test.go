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

package syscalls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmot-os/marmot/pkg/abi/sysno"
)

func TestTableCoversClosedSet(t *testing.T) {
	infos := Table()
	require.Len(t, infos, int(sysno.Max))
	for i, info := range infos {
		assert.Equal(t, uint32(i), info.Number)
		assert.Equal(t, sysno.Name(info.Number), info.Name)
	}
}
