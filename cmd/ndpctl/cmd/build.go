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
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/faketime"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/link/channel"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/link/sniffer"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/network/ipv6"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/stack"
)

// Message kinds Build can produce.
const (
	KindRouterSolicit = "rs"
	KindMLDReport     = "mld-report"
	KindMLDDone       = "mld-done"
)

// buildNIC is the NIC packets are built on; Build has only one.
const buildNIC tcpip.NICID = 1

// BuildOptions describes a packet to build.
type BuildOptions struct {
	Kind     string
	Src      tcpip.Address
	LinkAddr tcpip.LinkAddress
	Group    tcpip.Address
	MTU      uint32

	// PCAP, if set, receives the packet in pcap format.
	PCAP io.Writer
}

// BuildPacket builds one packet as the stack would send it. Router
// Solicitations come from a solicitor run on a manual clock, so the options
// they carry follow the same rules as on a live link.
func BuildPacket(opts BuildOptions) ([]byte, error) {
	ep := channel.New(1, opts.MTU, opts.LinkAddr)
	defer ep.Close()

	var link stack.LinkEndpoint = ep
	clock := faketime.NewManualClock()
	if opts.PCAP != nil {
		var err error
		if link, err = sniffer.NewWithWriter(ep, opts.PCAP, opts.MTU, clock); err != nil {
			return nil, err
		}
	}
	sender := ipv6.NewPacketSender(nil)
	sender.Attach(buildNIC, link)

	switch opts.Kind {
	case KindRouterSolicit:
		if err := solicitOnce(clock, sender, opts); err != nil {
			return nil, err
		}
	case KindMLDReport, KindMLDDone:
		group, ok := header.NewMulticastAddress(opts.Group)
		if !ok {
			return nil, fmt.Errorf("%q is not a multicast group", opts.Group)
		}
		send := sender.SendMLDReport
		if opts.Kind == KindMLDDone {
			send = sender.SendMLDDone
		}
		if err := send(buildNIC, opts.Src, group); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown message kind %q, must be %q, %q or %q", opts.Kind, KindRouterSolicit, KindMLDReport, KindMLDDone)
	}

	p, ok := ep.Read()
	if !ok {
		return nil, errors.New("no packet was sent")
	}
	return p.Pkt, nil
}

func solicitOnce(clock *faketime.ManualClock, sender *ipv6.PacketSender, opts BuildOptions) error {
	rs, err := ipv6.NewRouterSolicitor(ipv6.RouterSolicitorOptions{
		Clock:  clock,
		Sender: sender,
		Logger: log.Log(),
	})
	if err != nil {
		return err
	}
	nic := ipv6.NICOptions{
		LinkAddress: opts.LinkAddr,
		Configs: ipv6.NDPConfigurations{
			MaxRtrSolicitations:     1,
			RtrSolicitationInterval: ipv6.RtrSolicitationInterval,
		},
	}
	if err := rs.AddNIC(buildNIC, nic); err != nil {
		return err
	}
	if len(opts.Src) != 0 && !header.IsV6UnspecifiedAddress(opts.Src) {
		if err := rs.SetSourceAddress(buildNIC, opts.Src); err != nil {
			return err
		}
	}
	if err := rs.Enable(buildNIC); err != nil {
		return err
	}
	clock.Advance(0)
	if n := rs.Stats().RouterSolicitDropped.Value(); n != 0 {
		return errors.New("router solicitation could not be sent")
	}
	return nil
}

// Build implements subcommands.Command for the "build" command.
type Build struct {
	kind    string
	src     string
	group   string
	mtu     uint
	pcapLog string
}

// Name implements subcommands.Command.Name.
func (*Build) Name() string {
	return "build"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Build) Synopsis() string {
	return "build a router solicitation or MLD message and print it as hex"
}

// Usage implements subcommands.Command.Usage.
func (*Build) Usage() string {
	return `build [flags] - build an IPv6 packet and print it as hex.

The link address in the configuration is carried in router solicitations sent
from a specified source address.

EXAMPLE:
    $ ndpctl build -type rs -src fe80::1
    $ ndpctl build -type mld-report -src fe80::1 -group ff02::1:ff00:1
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Build) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.kind, "type", KindRouterSolicit, "message to build: rs, mld-report or mld-done.")
	f.StringVar(&b.src, "src", "", "IPv6 source address. Defaults to the configured source, then to the unspecified address.")
	f.StringVar(&b.group, "group", "", "multicast group of an MLD message.")
	f.UintVar(&b.mtu, "mtu", 1280, "link MTU.")
	f.StringVar(&b.pcapLog, "pcap-log", "", "also write the packet to this pcap file. Defaults to the configured pcap log.")
}

// Execute implements subcommands.Command.Execute.
func (b *Build) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := confFromArgs(args)

	opts := BuildOptions{
		Kind: b.kind,
		MTU:  uint32(b.mtu),
	}
	var err error
	if opts.LinkAddr, err = tcpip.ParseLinkAddress(conf.LinkAddress); err != nil {
		return Errorf("invalid link address %q: %v", conf.LinkAddress, err)
	}
	src := b.src
	if src == "" {
		src = conf.SourceAddress
	}
	opts.Src = header.IPv6Any
	if src != "" {
		if opts.Src, err = tcpip.ParseIPv6Address(src); err != nil {
			return Errorf("%v", err)
		}
	}
	if b.group != "" {
		if opts.Group, err = tcpip.ParseIPv6Address(b.group); err != nil {
			return Errorf("%v", err)
		}
	}

	pcapLog := b.pcapLog
	if pcapLog == "" {
		pcapLog = conf.PCAPLog
	}
	if pcapLog != "" {
		pf, err := os.Create(pcapLog)
		if err != nil {
			return Errorf("creating pcap log: %v", err)
		}
		defer pf.Close()
		opts.PCAP = pf
	}

	pkt, err := BuildPacket(opts)
	if err != nil {
		return Errorf("building %s: %v", b.kind, err)
	}
	fmt.Fprintf(os.Stdout, "%x\n", pkt)
	return subcommands.ExitSuccess
}
