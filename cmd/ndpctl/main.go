// Copyright 2021 The gVisor Authors.
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

// Binary ndpctl builds, decodes and sends IPv6 router discovery messages.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"

	"github.com/vsrinivas/fuchsia-sub084/cmd/ndpctl/cmd"
	"github.com/vsrinivas/fuchsia-sub084/cmd/ndpctl/config"
	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
)

var (
	configPath = flag.String("config", "", "path to a TOML configuration file.")
	logFile    = flag.String("log", "", "file path where logs are appended, default is stderr.")
	logFormat  = flag.String("log-format", "", "log format: text (default) or json.")
	logLevel   = flag.String("log-level", "", "log level: warning, info (default) or debug.")
	debug      = flag.Bool("debug", false, "enable debug logging. Same as -log-level=debug.")
)

func main() {
	// Help and flags commands are generated automatically.
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	subcommands.Register(new(cmd.Build), "")
	subcommands.Register(new(cmd.Parse), "")
	subcommands.Register(new(cmd.Solicit), "")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			cmd.Fatalf("%v", err)
		}
	}
	if *logFile != "" {
		conf.LogFilename = *logFile
	}
	if *logFormat != "" {
		conf.LogFormat = *logFormat
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}
	if *debug {
		conf.LogLevel = log.Debug.String()
	}
	if err := conf.Validate(); err != nil {
		cmd.Fatalf("invalid configuration: %v", err)
	}

	f, err := log.OpenFile(conf.LogFilename)
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	out := os.Stderr
	if f != nil {
		out = f
	}
	emitter, err := log.NewEmitter(log.Format(conf.LogFormat), &log.Writer{Next: out})
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	log.SetTarget(emitter)
	log.SetLevel(conf.Level())

	log.Debugf("ndpctl %s, %s, PID %d, args %v", runtime.Version(), runtime.GOARCH, os.Getpid(), os.Args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	status := subcommands.Execute(ctx, conf)
	stop()
	if f != nil {
		f.Close()
	}
	os.Exit(int(status))
}
