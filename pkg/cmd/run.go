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

// Package cmd implements the CLI subcommands.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marmot-os/marmot/pkg/config"
	"github.com/marmot-os/marmot/pkg/devices"
	"github.com/marmot-os/marmot/pkg/fs/memfs"
	"github.com/marmot-os/marmot/pkg/kernel"
	"github.com/marmot-os/marmot/pkg/syscalls"
	"github.com/marmot-os/marmot/pkg/userland"
)

// Run boots the machine and runs one user command line.
type Run struct {
	configPath string
	diskDir    string
	memPages   int
	debug      bool
}

// Name implements subcommands.Command.
func (*Run) Name() string { return "run" }

// Synopsis implements subcommands.Command.
func (*Run) Synopsis() string { return "boot the kernel and run a user command line" }

// Usage implements subcommands.Command.
func (*Run) Usage() string {
	return `run [flags] <command line>
Boot the kernel, run the given user command line, and exit with the
process's exit status (mapped to 0/1).
`
}

// SetFlags implements subcommands.Command.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "machine configuration file (TOML).")
	f.StringVar(&r.diskDir, "disk", "", "host directory whose files form the boot disk.")
	f.IntVar(&r.memPages, "mem-pages", 0, "user memory pool size in pages; 0 uses the default.")
	f.BoolVar(&r.debug, "debug", false, "enable debug logging.")
}

// Execute implements subcommands.Command.
func (r *Run) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "run: missing command line")
		return subcommands.ExitUsageError
	}

	cfg := config.Default()
	if r.configPath != "" {
		loaded, err := config.Load(r.configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		cfg = loaded
	}
	if r.diskDir != "" {
		cfg.DiskDir = r.diskDir
	}
	if r.memPages != 0 {
		cfg.MemoryPages = r.memPages
	}
	if r.debug {
		cfg.Debug = true
	}

	log := logrus.New()
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
		log.Debugf("resolved config: %s", spew.Sdump(cfg))
	}

	// The command line may arrive as one quoted string or as separate
	// argv words; either way it is normalized to single spaces, which is
	// what the kernel's tokenizer expects.
	var words []string
	for _, a := range f.Args() {
		split, err := shellquote.Split(a)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
			return subcommands.ExitUsageError
		}
		words = append(words, split...)
	}
	cmdline := strings.Join(words, " ")

	disk := memfs.New()
	if cfg.DiskDir != "" {
		lock := flock.New(filepath.Join(cfg.DiskDir, ".marmot.lock"))
		locked, err := lock.TryLock()
		if err != nil || !locked {
			fmt.Fprintf(os.Stderr, "run: disk %s is in use\n", cfg.DiskDir)
			return subcommands.ExitFailure
		}
		defer lock.Unlock()
		if err := loadDiskDir(disk, cfg.DiskDir); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	}
	for _, df := range cfg.Disk {
		data, err := os.ReadFile(df.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run: disk file %s: %v\n", df.Name, err)
			return subcommands.ExitFailure
		}
		disk.Install(df.Name, data)
	}

	k := kernel.New(kernel.Config{
		Filesys:       disk,
		ConsoleWriter: os.Stdout,
		Input:         devices.NewReaderInput(os.Stdin),
		MemoryPages:   cfg.MemoryPages,
		Log:           log,
		Shutdown:      func() { os.Exit(0) },
	})
	k.SetSyscallHandler(syscalls.Handle)
	userland.Install(k, disk)

	// The boot thread blocks in wait until the started process exits;
	// an interrupt cannot unwind it, so the signal watcher powers the
	// machine off directly.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		s := <-sig
		fmt.Fprintf(os.Stderr, "run: interrupted: %v\n", s)
		os.Exit(130)
	}()

	var status int32
	g := new(errgroup.Group)
	g.Go(func() error {
		status = k.Run(cmdline)
		return nil
	})
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	log.WithField("status", status).Debug("machine halted")
	if status != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func loadDiskDir(disk *memfs.Filesystem, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("run: disk dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("run: disk dir: %w", err)
		}
		disk.Install(e.Name(), data)
	}
	return nil
}
