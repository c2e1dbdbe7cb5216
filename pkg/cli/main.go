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

// Package cli is the main entrypoint for the marmot command.
package cli

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/marmot-os/marmot/pkg/cmd"
)

// Main is the main entrypoint.
func Main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	subcommands.Register(new(cmd.Run), "")
	subcommands.Register(new(cmd.Syscalls), "")
	subcommands.Register(new(cmd.Version), "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
