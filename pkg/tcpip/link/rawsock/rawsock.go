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

// Package rawsock sends Router Solicitations and receives Router
// Advertisements on a host interface through a raw ICMPv6 socket. The kernel
// fills in the ICMPv6 checksum and, when no source is given, picks the
// source address.
//
// Opening a raw socket requires CAP_NET_RAW.
package rawsock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/icmp"
	xipv6 "golang.org/x/net/ipv6"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/network/ipv6"
)

// Errors returned by Conn.
var (
	ErrWrongNIC          = errors.New("NIC is not the interface the socket is bound to")
	ErrNotAdvertisement  = errors.New("not a router advertisement")
	ErrInvalidHopLimit   = errors.New("router advertisement hop limit is not 255")
	ErrInvalidRouterAddr = errors.New("router advertisement source is not link-local")
)

// RouterAdvertisement is a validated Router Advertisement.
type RouterAdvertisement struct {
	// Router is the link-local address of the advertising router.
	Router tcpip.Address

	// Message is the body of the advertisement following the ICMPv6
	// header.
	Message header.NDPRouterAdvert
}

// Conn is a raw ICMPv6 socket bound to one interface.
type Conn struct {
	ifi *net.Interface
	c   *icmp.PacketConn
	p   *xipv6.PacketConn
}

var _ ipv6.RSSender = (*Conn)(nil)

// Open opens a raw ICMPv6 socket on the interface named ifname. Only Router
// Advertisements are delivered to it.
func Open(ifname string) (*Conn, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, err
	}
	c, err := icmp.ListenPacket("ip6:ipv6-icmp", "::")
	if err != nil {
		return nil, fmt.Errorf("opening raw ICMPv6 socket: %w", err)
	}
	conn := &Conn{ifi: ifi, c: c, p: c.IPv6PacketConn()}
	if err := conn.setup(); err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Conn) setup() error {
	var f xipv6.ICMPFilter
	f.SetAll(true)
	f.Accept(xipv6.ICMPTypeRouterAdvertisement)
	if err := c.p.SetICMPFilter(&f); err != nil {
		return fmt.Errorf("setting ICMPv6 filter: %w", err)
	}
	if err := c.p.SetMulticastHopLimit(header.NDPHopLimit); err != nil {
		return fmt.Errorf("setting multicast hop limit: %w", err)
	}
	if err := c.p.SetMulticastInterface(c.ifi); err != nil {
		return fmt.Errorf("setting multicast interface: %w", err)
	}
	if err := c.p.SetControlMessage(xipv6.FlagHopLimit|xipv6.FlagSrc|xipv6.FlagInterface, true); err != nil {
		return fmt.Errorf("enabling control messages: %w", err)
	}
	return nil
}

// NICID returns the NIC identifier of the bound interface, its index.
func (c *Conn) NICID() tcpip.NICID {
	return tcpip.NICID(c.ifi.Index)
}

// LinkAddress returns the hardware address of the bound interface.
func (c *Conn) LinkAddress() tcpip.LinkAddress {
	return tcpip.LinkAddress(c.ifi.HardwareAddr)
}

// Close closes the socket.
func (c *Conn) Close() error {
	return c.c.Close()
}

// SendRouterSolicitation implements ipv6.RSSender.
func (c *Conn) SendRouterSolicitation(nicID tcpip.NICID, src tcpip.Address, bodyLen int, fill func(header.NDPRouterSolicit)) error {
	if nicID != c.NICID() {
		return fmt.Errorf("%w: %d", ErrWrongNIC, nicID)
	}
	msg := buildRouterSolicitation(bodyLen, fill)
	cm := controlMessage(c.ifi.Index, src)
	dst := &net.IPAddr{IP: net.IP(header.IPv6AllRoutersLinkLocalMulticastAddress), Zone: c.ifi.Name}
	if _, err := c.p.WriteTo(msg, cm, dst); err != nil {
		return fmt.Errorf("writing router solicitation: %w", err)
	}
	return nil
}

// ReadRouterAdvertisement blocks until a valid Router Advertisement arrives
// on the bound interface or ctx is done. Invalid advertisements are skipped.
func (c *Conn) ReadRouterAdvertisement(ctx context.Context) (RouterAdvertisement, error) {
	buf := make([]byte, 1<<16)
	for {
		// The zero deadline, for a ctx without one, means no timeout.
		deadline, _ := ctx.Deadline()
		if err := c.p.SetReadDeadline(deadline); err != nil {
			return RouterAdvertisement{}, err
		}

		// Unblock the read when ctx is cancelled without a deadline.
		stop := context.AfterFunc(ctx, func() {
			c.p.SetReadDeadline(time.Now())
		})
		n, cm, peer, err := c.p.ReadFrom(buf)
		stop()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return RouterAdvertisement{}, ctxErr
			}
			return RouterAdvertisement{}, err
		}
		if cm != nil && cm.IfIndex != 0 && cm.IfIndex != c.ifi.Index {
			continue
		}
		ra, err := parseRouterAdvertisement(buf[:n], cm, peer)
		if err != nil {
			continue
		}
		return ra, nil
	}
}

func buildRouterSolicitation(bodyLen int, fill func(header.NDPRouterSolicit)) []byte {
	msg := header.ICMPv6(make([]byte, header.ICMPv6HeaderSize+bodyLen))
	msg.SetType(header.ICMPv6RouterSolicit)
	msg.SetCode(0)
	fill(header.NDPRouterSolicit(msg.MessageBody()))
	return msg
}

func controlMessage(ifIndex int, src tcpip.Address) *xipv6.ControlMessage {
	cm := &xipv6.ControlMessage{
		HopLimit: header.NDPHopLimit,
		IfIndex:  ifIndex,
	}
	if len(src) == header.IPv6AddressSize && !header.IsV6UnspecifiedAddress(src) {
		cm.Src = net.IP(src)
	}
	return cm
}

// parseRouterAdvertisement validates a received ICMPv6 message as per RFC
// 4861 section 6.1.2. The checksum has already been verified by the kernel.
func parseRouterAdvertisement(b []byte, cm *xipv6.ControlMessage, peer net.Addr) (RouterAdvertisement, error) {
	icmp, err := header.ParseICMPv6(b)
	if err != nil {
		return RouterAdvertisement{}, err
	}
	if icmp.Type() != header.ICMPv6RouterAdvert || icmp.Code() != 0 {
		return RouterAdvertisement{}, fmt.Errorf("%w: %s code %d", ErrNotAdvertisement, icmp.Type(), icmp.Code())
	}
	if cm == nil || cm.HopLimit != header.NDPHopLimit {
		return RouterAdvertisement{}, ErrInvalidHopLimit
	}
	var router tcpip.Address
	if addr, ok := peer.(*net.IPAddr); ok {
		if ip := addr.IP.To16(); ip != nil && addr.IP.To4() == nil {
			router = tcpip.Address(ip)
		}
	}
	if !header.IsV6LinkLocalUnicastAddress(router) {
		return RouterAdvertisement{}, fmt.Errorf("%w: %s", ErrInvalidRouterAddr, peer)
	}
	ra, err := header.ParseNDPRouterAdvert(icmp.MessageBody())
	if err != nil {
		return RouterAdvertisement{}, err
	}
	if err := validateOptions(ra.Options()); err != nil {
		return RouterAdvertisement{}, err
	}
	return RouterAdvertisement{Router: router, Message: ra}, nil
}

func validateOptions(opts header.NDPOptions) error {
	it := opts.Iter()
	for {
		_, done, err := it.Next()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
