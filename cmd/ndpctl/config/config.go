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

// Package config holds the configuration of ndpctl, loaded from a TOML file
// and overridden by flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/network/ipv6"
)

// Duration is a time.Duration written as a Go duration string, e.g. "4s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// NDP holds the Router Solicitation parameters.
type NDP struct {
	// MaxRtrSolicitations is the number of solicitations sent when an
	// interface comes up. Zero disables soliciting.
	MaxRtrSolicitations uint8 `toml:"max_rtr_solicitations"`

	// RtrSolicitationInterval is the time between solicitations.
	RtrSolicitationInterval Duration `toml:"rtr_solicitation_interval"`

	// MaxRtrSolicitationDelay bounds the random delay before the first
	// solicitation.
	MaxRtrSolicitationDelay Duration `toml:"max_rtr_solicitation_delay"`
}

// Config is the configuration for ndpctl.
type Config struct {
	// LogLevel is one of "warning", "info" or "debug".
	LogLevel string `toml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format"`

	// LogFilename is the file logs are appended to. Empty means stderr.
	LogFilename string `toml:"log"`

	// PCAPLog, if set, is the file outbound packets are captured to.
	PCAPLog string `toml:"pcap_log"`

	// Interface is the host interface to solicit routers on.
	Interface string `toml:"interface"`

	// SourceAddress is the IPv6 address solicitations are sent from. Empty
	// means the unspecified address.
	SourceAddress string `toml:"source_address"`

	// LinkAddress overrides the link address carried in solicitations.
	LinkAddress string `toml:"link_address"`

	NDP NDP `toml:"ndp"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := ipv6.DefaultNDPConfigurations()
	return &Config{
		LogLevel:  "info",
		LogFormat: string(log.FormatText),
		NDP: NDP{
			MaxRtrSolicitations:     d.MaxRtrSolicitations,
			RtrSolicitationInterval: Duration(d.RtrSolicitationInterval),
			MaxRtrSolicitationDelay: Duration(d.MaxRtrSolicitationDelay),
		},
	}
}

// Load reads the TOML file at path over the defaults. Keys the file does not
// set keep their default. Unknown keys are an error.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("decoding %q: unknown keys %q", path, undecoded)
	}
	return c, nil
}

// Validate checks that all fields hold values ndpctl can use.
func (c *Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch log.Format(c.LogFormat) {
	case log.FormatText, log.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q, must be %q or %q", c.LogFormat, log.FormatText, log.FormatJSON))
	}
	if _, err := c.Source(); err != nil {
		errs = append(errs, err)
	}
	if _, err := tcpip.ParseLinkAddress(c.LinkAddress); err != nil {
		errs = append(errs, fmt.Errorf("invalid link address %q: %w", c.LinkAddress, err))
	}
	if c.NDP.RtrSolicitationInterval <= 0 {
		errs = append(errs, fmt.Errorf("rtr_solicitation_interval must be positive, got %s", time.Duration(c.NDP.RtrSolicitationInterval)))
	}
	if c.NDP.MaxRtrSolicitationDelay < 0 {
		errs = append(errs, fmt.Errorf("max_rtr_solicitation_delay must not be negative, got %s", time.Duration(c.NDP.MaxRtrSolicitationDelay)))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.Info
	}
	return l
}

// Source returns the parsed source address; empty if unset.
func (c *Config) Source() (tcpip.Address, error) {
	if c.SourceAddress == "" {
		return "", nil
	}
	return tcpip.ParseIPv6Address(c.SourceAddress)
}

// NDPConfigurations returns the solicitation parameters.
func (c *Config) NDPConfigurations() ipv6.NDPConfigurations {
	return ipv6.NDPConfigurations{
		MaxRtrSolicitations:     c.NDP.MaxRtrSolicitations,
		RtrSolicitationInterval: time.Duration(c.NDP.RtrSolicitationInterval),
		MaxRtrSolicitationDelay: time.Duration(c.NDP.MaxRtrSolicitationDelay),
	}
}

// Log logs the configuration at info level.
func (c *Config) Log() {
	log.Infof("Config:")
	log.Infof("\t\tInterface: %q", c.Interface)
	log.Infof("\t\tSourceAddress: %q", c.SourceAddress)
	log.Infof("\t\tLinkAddress: %q", c.LinkAddress)
	log.Infof("\t\tMaxRtrSolicitations: %d", c.NDP.MaxRtrSolicitations)
	log.Infof("\t\tRtrSolicitationInterval: %s", time.Duration(c.NDP.RtrSolicitationInterval))
	log.Infof("\t\tMaxRtrSolicitationDelay: %s", time.Duration(c.NDP.MaxRtrSolicitationDelay))
	log.Infof("\t\tLog: %q (%s, %s)", c.LogFilename, c.LogFormat, c.LogLevel)
	log.Infof("\t\tPCAPLog: %q", c.PCAPLog)
}
