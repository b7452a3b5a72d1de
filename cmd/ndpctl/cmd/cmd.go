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

// Package cmd holds implementations of the ndpctl commands.
package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/vsrinivas/fuchsia-sub084/cmd/ndpctl/config"
	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
)

// Fatalf logs to stderr and the log, then exits with a failure status code.
func Fatalf(format string, args ...any) {
	writeError(format, args...)
	os.Exit(128)
}

// Errorf logs an error to stderr and the log. It returns
// subcommands.ExitFailure for convenience with subcommand.Execute() methods:
//
//	return Errorf("Danger! Danger!")
func Errorf(format string, args ...any) subcommands.ExitStatus {
	writeError(format, args...)
	return subcommands.ExitFailure
}

func writeError(format string, args ...any) {
	// Also write to the log in case it has been redirected to a file.
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, "ndpctl: "+format+"\n", args...)
}

// confFromArgs returns the configuration main passes to every command.
func confFromArgs(args []any) *config.Config {
	if len(args) == 0 {
		return config.Default()
	}
	return args[0].(*config.Config)
}

// decodeHex parses a packet written as hexadecimal. Whitespace and colons
// between digits are ignored, so tcpdump -xx and Wireshark hex dumps paste
// cleanly once their offsets are stripped.
func decodeHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decoding packet hex: %w", err)
	}
	return b, nil
}

// readPacket returns the packet given as args or, when there are none, read
// from r.
func readPacket(args []string, r io.Reader) ([]byte, error) {
	if len(args) != 0 {
		return decodeHex(strings.Join(args, ""))
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decodeHex(string(b))
}
