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

package cmd

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/google/subcommands"
	"github.com/olekukonko/tablewriter"

	"github.com/marmot-os/marmot/pkg/syscalls"
)

// Syscalls prints the system call table.
type Syscalls struct{}

// Name implements subcommands.Command.
func (*Syscalls) Name() string { return "syscalls" }

// Synopsis implements subcommands.Command.
func (*Syscalls) Synopsis() string { return "print the system call table" }

// Usage implements subcommands.Command.
func (*Syscalls) Usage() string {
	return `syscalls
Print the closed set of system calls the kernel dispatches.
`
}

// SetFlags implements subcommands.Command.
func (*Syscalls) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*Syscalls) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NUM", "NAME"})
	table.SetBorder(false)
	for _, info := range syscalls.Table() {
		table.Append([]string{strconv.Itoa(int(info.Number)), info.Name})
	}
	table.Render()
	return subcommands.ExitSuccess
}
