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
	"os"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/vsrinivas/fuchsia-sub084/cmd/ndpctl/config"
	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/link/channel"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/link/rawsock"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/link/sniffer"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/network/ipv6"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/stack"
)

// dryRunNIC is the NIC of the in-memory link used by -dry-run.
const dryRunNIC tcpip.NICID = 1

// ErrNoRouter is returned when soliciting ends without an advertisement.
var ErrNoRouter = errors.New("no router advertisement received")

// Link is where a solicitation run sends and receives.
type Link struct {
	NICID    tcpip.NICID
	LinkAddr tcpip.LinkAddress
	Sender   ipv6.RSSender

	// ReadRouterAdvertisement, if set, blocks until an advertisement
	// arrives. Links without it only send.
	ReadRouterAdvertisement func(ctx context.Context) (rawsock.RouterAdvertisement, error)
}

// RunSolicitation solicits routers on link as configured by conf and waits
// wait past the last solicitation for an advertisement. It returns the
// advertisement, or ErrNoRouter if the link can receive and none came.
func RunSolicitation(ctx context.Context, clock tcpip.Clock, conf *config.Config, link Link, wait time.Duration) (*rawsock.RouterAdvertisement, *ipv6.Stats, error) {
	rs, err := ipv6.NewRouterSolicitor(ipv6.RouterSolicitorOptions{
		Clock:  clock,
		Sender: link.Sender,
	})
	if err != nil {
		return nil, nil, err
	}
	ndp := conf.NDPConfigurations()
	if err := rs.AddNIC(link.NICID, ipv6.NICOptions{LinkAddress: link.LinkAddr, Configs: ndp}); err != nil {
		return nil, nil, err
	}
	src, err := conf.Source()
	if err != nil {
		return nil, nil, err
	}
	if src != "" {
		if err := rs.SetSourceAddress(link.NICID, src); err != nil {
			return nil, nil, err
		}
	}

	// Long enough for every solicitation and the wait after the last.
	budget := ndp.MaxRtrSolicitationDelay + wait
	if ndp.MaxRtrSolicitations > 1 {
		budget += time.Duration(ndp.MaxRtrSolicitations-1) * ndp.RtrSolicitationInterval
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var ra *rawsock.RouterAdvertisement
	g, gctx := errgroup.WithContext(ctx)
	if link.ReadRouterAdvertisement != nil {
		g.Go(func() error {
			got, err := link.ReadRouterAdvertisement(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("reading router advertisement: %w", err)
			}
			log.Infof("Router advertisement from %s: lifetime %s", got.Router, got.Message.RouterLifetime())
			ra = &got
			cancel()
			return rs.HandleRouterAdvertisement(link.NICID)
		})
	}
	// Keep soliciting until the budget runs out or a router answers.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := rs.Enable(link.NICID); err != nil {
		cancel()
		g.Wait()
		return nil, rs.Stats(), err
	}
	err = g.Wait()
	if dErr := rs.Disable(link.NICID); err == nil {
		err = dErr
	}
	if err != nil {
		return nil, rs.Stats(), err
	}
	if ra == nil && link.ReadRouterAdvertisement != nil {
		return nil, rs.Stats(), ErrNoRouter
	}
	return ra, rs.Stats(), nil
}

// Solicit implements subcommands.Command for the "solicit" command.
type Solicit struct {
	iface   string
	src     string
	wait    time.Duration
	dryRun  bool
	pcapLog string
}

// Name implements subcommands.Command.Name.
func (*Solicit) Name() string {
	return "solicit"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Solicit) Synopsis() string {
	return "solicit routers on an interface and wait for an advertisement"
}

// Usage implements subcommands.Command.Usage.
func (*Solicit) Usage() string {
	return `solicit [flags] - solicit routers on an interface.

Router solicitations are sent as configured in the [ndp] section of the
configuration until a router advertises itself. Sending on a host interface
needs CAP_NET_RAW. With -dry-run, solicitations are logged instead of sent.

EXAMPLE:
    $ sudo ndpctl solicit -interface eth0
    $ ndpctl -log-level debug solicit -dry-run -pcap-log rs.pcap
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Solicit) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.iface, "interface", "", "interface to solicit routers on. Defaults to the configured interface.")
	f.StringVar(&s.src, "src", "", "IPv6 source address. Defaults to the configured source, then to the unspecified address.")
	f.DurationVar(&s.wait, "wait", 2*time.Second, "how long to wait for an advertisement after the last solicitation.")
	f.BoolVar(&s.dryRun, "dry-run", false, "log solicitations on an in-memory link instead of sending them.")
	f.StringVar(&s.pcapLog, "pcap-log", "", "with -dry-run, write solicitations to this pcap file. Defaults to the configured pcap log.")
}

// Execute implements subcommands.Command.Execute.
func (s *Solicit) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := *confFromArgs(args)
	if s.iface != "" {
		conf.Interface = s.iface
	}
	if s.src != "" {
		conf.SourceAddress = s.src
	}
	if s.pcapLog != "" {
		conf.PCAPLog = s.pcapLog
	}
	if err := conf.Validate(); err != nil {
		return Errorf("invalid configuration: %v", err)
	}
	linkAddr, err := tcpip.ParseLinkAddress(conf.LinkAddress)
	if err != nil {
		return Errorf("%v", err)
	}
	conf.Log()

	var link Link
	if s.dryRun {
		l, closeLink, err := dryRunLink(&conf, linkAddr)
		if err != nil {
			return Errorf("%v", err)
		}
		defer closeLink()
		link = l
	} else {
		if conf.Interface == "" {
			return Errorf("no interface given")
		}
		conn, err := rawsock.Open(conf.Interface)
		if err != nil {
			return Errorf("opening %s: %v", conf.Interface, err)
		}
		defer conn.Close()
		if len(linkAddr) == 0 {
			linkAddr = conn.LinkAddress()
		}
		link = Link{
			NICID:                   conn.NICID(),
			LinkAddr:                linkAddr,
			Sender:                  conn,
			ReadRouterAdvertisement: conn.ReadRouterAdvertisement,
		}
	}

	ra, stats, err := RunSolicitation(ctx, tcpip.NewStdClock(), &conf, link, s.wait)
	if stats != nil {
		log.Infof("Router solicitations sent: %d, dropped: %d", stats.RouterSolicitSent.Value(), stats.RouterSolicitDropped.Value())
	}
	if err != nil {
		return Errorf("%v", err)
	}
	if ra != nil {
		fmt.Fprintf(os.Stdout, "router %s lifetime %s\n", ra.Router, ra.Message.RouterLifetime())
	}
	return subcommands.ExitSuccess
}

// discardOnWrite empties an in-memory link whenever a packet is written to
// it.
type discardOnWrite struct {
	ep *channel.Endpoint
}

// WriteNotify implements channel.Notification.
func (d discardOnWrite) WriteNotify() {
	d.ep.Drain()
}

// dryRunLink returns a link that logs the packets it is given and, if
// conf.PCAPLog is set, captures them.
func dryRunLink(conf *config.Config, linkAddr tcpip.LinkAddress) (Link, func(), error) {
	ep := channel.New(1, 1500, linkAddr)
	h := ep.AddNotify(discardOnWrite{ep: ep})
	closers := []func(){ep.Close, func() { ep.RemoveNotify(h) }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	lower := stack.LinkEndpoint(ep)
	if conf.PCAPLog != "" {
		pf, err := os.Create(conf.PCAPLog)
		if err != nil {
			closeAll()
			return Link{}, nil, fmt.Errorf("creating pcap log: %w", err)
		}
		closers = append(closers, func() { pf.Close() })
		if lower, err = sniffer.NewWithWriter(ep, pf, 1500, tcpip.NewStdClock()); err != nil {
			closeAll()
			return Link{}, nil, err
		}
	}
	sender := ipv6.NewPacketSender(nil)
	sender.Attach(dryRunNIC, sniffer.New(lower))

	return Link{
		NICID:    dryRunNIC,
		LinkAddr: linkAddr,
		Sender:   sender,
	}, closeAll, nil
}
