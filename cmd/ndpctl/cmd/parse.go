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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
)

// Describe decodes an IPv6 packet carrying an NDP router discovery or MLD
// message and returns a line per layer.
func Describe(pkt []byte) ([]string, error) {
	ip, _, err := header.ParseIPv6(pkt)
	if err != nil {
		return nil, err
	}
	lines := []string{
		fmt.Sprintf("IPv6 %s -> %s hoplimit %d next %s payload %d", ip.SourceAddress(), ip.DestinationAddress(), ip.HopLimit(), ip.NextHeader(), ip.Header().PayloadLength()),
	}
	if ip.NextHeader().TransportProtocol() != header.ICMPv6ProtocolNumber {
		return lines, nil
	}

	icmp, err := header.ParseICMPv6(ip.Body())
	if err != nil {
		return lines, err
	}
	xsum := "valid"
	if want := header.ICMPv6Checksum(icmp, ip.SourceAddress(), ip.DestinationAddress()); want != icmp.Checksum() {
		xsum = fmt.Sprintf("invalid, want 0x%04x", want)
	}
	lines = append(lines, fmt.Sprintf("ICMPv6 %s code %d checksum 0x%04x (%s)", icmp.Type(), icmp.Code(), icmp.Checksum(), xsum))

	body := icmp.MessageBody()
	var opts header.NDPOptions
	switch icmp.Type() {
	case header.ICMPv6RouterSolicit:
		if len(body) < header.NDPRSMinimumSize {
			return lines, fmt.Errorf("router solicitation body is %d bytes, want at least %d", len(body), header.NDPRSMinimumSize)
		}
		opts = header.NDPRouterSolicit(body).Options()
	case header.ICMPv6RouterAdvert:
		ra, err := header.ParseNDPRouterAdvert(body)
		if err != nil {
			return lines, err
		}
		lines = append(lines, fmt.Sprintf("  curhoplimit %d managed %t other %t lifetime %s reachable %s retrans %s",
			ra.CurrHopLimit(), ra.ManagedAddrConfFlag(), ra.OtherConfFlag(), ra.RouterLifetime(), ra.ReachableTime(), ra.RetransTimer()))
		opts = ra.Options()
	case header.ICMPv6MulticastListenerQuery:
		q, err := header.ParseMLDQuery(body)
		if err != nil {
			return lines, err
		}
		lines = append(lines, fmt.Sprintf("  group %s max response delay %s", q.GroupAddress(), q.MaxResponseDelay().Duration()))
		return lines, nil
	case header.ICMPv6MulticastListenerReport:
		r, err := header.ParseMLDReport(body)
		if err != nil {
			return lines, err
		}
		lines = append(lines, fmt.Sprintf("  group %s", r.GroupAddress()))
		return lines, nil
	case header.ICMPv6MulticastListenerDone:
		d, err := header.ParseMLDDone(body)
		if err != nil {
			return lines, err
		}
		lines = append(lines, fmt.Sprintf("  group %s", d.GroupAddress()))
		return lines, nil
	default:
		return lines, nil
	}

	it := opts.Iter()
	for {
		opt, done, err := it.Next()
		if err != nil {
			return lines, err
		}
		if done {
			return lines, nil
		}
		lines = append(lines, fmt.Sprintf("  option %s", opt))
	}
}

// Parse implements subcommands.Command for the "parse" command.
type Parse struct{}

// Name implements subcommands.Command.Name.
func (*Parse) Name() string {
	return "parse"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Parse) Synopsis() string {
	return "decode a hex IPv6 router discovery or MLD packet"
}

// Usage implements subcommands.Command.Usage.
func (*Parse) Usage() string {
	return `parse [hex...] - decode an IPv6 packet.

The packet is read from the arguments or, if there are none, from stdin.

EXAMPLE:
    $ ndpctl build -type rs | ndpctl parse
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Parse) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Parse) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	pkt, err := readPacket(f.Args(), os.Stdin)
	if err != nil {
		return Errorf("%v", err)
	}
	lines, err := Describe(pkt)
	if len(lines) != 0 {
		fmt.Fprintln(os.Stdout, strings.Join(lines, "\n"))
	}
	if err != nil {
		return Errorf("malformed packet: %v", err)
	}
	return subcommands.ExitSuccess
}
