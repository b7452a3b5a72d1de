// Copyright 2019 The gVisor Authors.
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

// Package ipv6 implements the host side of IPv6 router discovery: the Router
// Solicitation state machine of RFC 4861 section 6.3.7, a clock-driven runtime
// for it and the packet sender that frames its messages.
package ipv6

import (
	"time"

	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
)

const (
	// MaxRtrSolicitations is the default number of Router Solicitation
	// messages to send when an IPv6 endpoint becomes enabled.
	//
	// Default = 3 (from RFC 4861 section 10).
	MaxRtrSolicitations = 3

	// RtrSolicitationInterval is the default amount of time between sending
	// Router Solicitation messages.
	//
	// Default = 4s (from 4861 section 10).
	RtrSolicitationInterval = 4 * time.Second

	// MaxRtrSolicitationDelay is the default maximum amount of time to wait
	// before sending the first Router Solicitation message.
	//
	// Default = 1s (from 4861 section 10).
	MaxRtrSolicitationDelay = time.Second

	// minimumMaxRtrSolicitationDelay is the minimum amount of time to wait
	// before sending the first Router Solicitation message. It is 0 because
	// we cannot have a negative delay.
	minimumMaxRtrSolicitationDelay = 0
)

// NDPConfigurations is the NDP configurations for the netstack.
type NDPConfigurations struct {
	// The number of Router Solicitation messages to send when the IPv6
	// endpoint becomes enabled. Zero disables soliciting.
	MaxRtrSolicitations uint8

	// The amount of time between transmitting Router Solicitation messages.
	//
	// Must be greater than 0.
	RtrSolicitationInterval time.Duration

	// The maximum amount of time before transmitting the first Router
	// Solicitation message.
	//
	// Must be greater than or equal to 0.
	MaxRtrSolicitationDelay time.Duration
}

// DefaultNDPConfigurations returns an NDPConfigurations populated with
// default values.
func DefaultNDPConfigurations() NDPConfigurations {
	return NDPConfigurations{
		MaxRtrSolicitations:     MaxRtrSolicitations,
		RtrSolicitationInterval: RtrSolicitationInterval,
		MaxRtrSolicitationDelay: MaxRtrSolicitationDelay,
	}
}

// validate modifies an NDPConfigurations with valid values. If invalid values
// are present in c, the corresponding default values will be used instead.
func (c *NDPConfigurations) validate() {
	if c.RtrSolicitationInterval <= 0 {
		c.RtrSolicitationInterval = RtrSolicitationInterval
	}

	if c.MaxRtrSolicitationDelay < minimumMaxRtrSolicitationDelay {
		c.MaxRtrSolicitationDelay = MaxRtrSolicitationDelay
	}
}

// RouterSolicitationState is the per-NIC state of the Router Solicitation
// state machine: how many solicitations remain to be sent. The zero value is
// idle.
type RouterSolicitationState struct {
	// remaining is the number of solicitations left to send, including
	// the one the pending timer will send. Zero means no solicitation is
	// in progress and no timer is armed.
	remaining uint8
}

// Remaining returns the number of solicitations left to send and whether a
// solicitation is in progress.
func (s *RouterSolicitationState) Remaining() (uint8, bool) {
	return s.remaining, s.remaining != 0
}

// Stats holds the counters of the Router Solicitation state machine.
type Stats struct {
	// RouterSolicitSent is the number of Router Solicitations handed to the
	// link.
	RouterSolicitSent tcpip.StatCounter

	// RouterSolicitDropped is the number of Router Solicitations that failed
	// to send.
	RouterSolicitDropped tcpip.StatCounter

	// MulticastListenerReportSent is the number of MLD reports sent.
	MulticastListenerReportSent tcpip.StatCounter

	// MulticastListenerDoneSent is the number of MLD done messages sent.
	MulticastListenerDoneSent tcpip.StatCounter

	// MLDDropped is the number of MLD messages that failed to send.
	MLDDropped tcpip.StatCounter
}

// RSDeviceContext gives the state machine access to per-NIC state.
type RSDeviceContext interface {
	// RouterSolicitationState returns the state of nicID, or nil if the
	// NIC does not exist.
	RouterSolicitationState(nicID tcpip.NICID) *RouterSolicitationState

	// NDPConfigurations returns the configuration of nicID.
	NDPConfigurations(nicID tcpip.NICID) NDPConfigurations

	// LinkAddress returns the link address of nicID. It is empty if the
	// link has none.
	LinkAddress(nicID tcpip.NICID) tcpip.LinkAddress

	// SourceAddress returns the address solicitations from nicID are sent
	// from, if one has been chosen.
	SourceAddress(nicID tcpip.NICID) (tcpip.Address, bool)
}

// TimerContext schedules the per-NIC solicitation timer. When the timer fires
// the implementation must call HandleRSTimer for the NIC.
type TimerContext interface {
	// ScheduleTimer arms the timer of nicID to fire after d, replacing any
	// pending one.
	ScheduleTimer(nicID tcpip.NICID, d time.Duration)

	// CancelTimer disarms the timer of nicID. It returns true if a timer
	// was pending. A cancelled timer must never fire.
	CancelTimer(nicID tcpip.NICID) bool
}

// RandContext produces the random delay before the first solicitation.
type RandContext interface {
	// UniformDuration returns a duration drawn uniformly from [0, max), or
	// 0 if max is not positive.
	UniformDuration(max time.Duration) time.Duration
}

// RSSender transmits Router Solicitations.
type RSSender interface {
	// SendRouterSolicitation sends a Router Solicitation from src out of
	// nicID. The message body is bodyLen bytes, starting with the reserved
	// field; fill writes it into the buffer the sender provides.
	SendRouterSolicitation(nicID tcpip.NICID, src tcpip.Address, bodyLen int, fill func(header.NDPRouterSolicit)) error
}

// RSContext is everything the Router Solicitation state machine needs from
// its environment.
type RSContext interface {
	RSDeviceContext
	TimerContext
	RandContext
	RSSender

	// RSStats returns the counters the state machine updates.
	RSStats() *Stats

	// RSLogger returns the logger send failures are reported to.
	RSLogger() log.Logger
}

// StartSolicitingRouters starts soliciting routers on nicID, as per RFC 4861
// section 6.3.7. If routers are already being solicited or the NIC is
// configured to send no solicitations, this function does nothing.
func StartSolicitingRouters(ctx RSContext, nicID tcpip.NICID) {
	s := ctx.RouterSolicitationState(nicID)
	if s == nil || s.remaining != 0 {
		return
	}

	c := ctx.NDPConfigurations(nicID)
	c.validate()
	if c.MaxRtrSolicitations == 0 {
		return
	}

	// Delay the first transmission of a Router Solicitation by a random
	// amount of time in [0, MaxRtrSolicitationDelay) to avoid congestion
	// when many hosts on a link start at once.
	s.remaining = c.MaxRtrSolicitations
	ctx.ScheduleTimer(nicID, ctx.UniformDuration(c.MaxRtrSolicitationDelay))
}

// HandleRSTimer sends the solicitation the timer of nicID was armed for and,
// if more remain, rearms the timer for the solicitation interval. A timer
// delivered after the state machine stopped is ignored.
//
// A failure to send is counted and logged; it still uses up one of the
// solicitations.
func HandleRSTimer(ctx RSContext, nicID tcpip.NICID) {
	s := ctx.RouterSolicitationState(nicID)
	if s == nil || s.remaining == 0 {
		return
	}

	src, ok := ctx.SourceAddress(nicID)
	if !ok {
		src = header.IPv6Any
	}

	// As per RFC 4861 section 4.1, the source link-layer address option
	// MUST NOT be included if the source address is the unspecified
	// address.
	var optsSerializer header.NDPOptionsSerializer
	if linkAddr := ctx.LinkAddress(nicID); len(linkAddr) != 0 && !header.IsV6UnspecifiedAddress(src) {
		optsSerializer = header.NDPOptionsSerializer{
			header.NDPSourceLinkLayerAddressOption(linkAddr),
		}
	}

	bodyLen := header.NDPRSMinimumSize + optsSerializer.Length()
	stats := ctx.RSStats()
	if err := ctx.SendRouterSolicitation(nicID, src, bodyLen, func(rs header.NDPRouterSolicit) {
		rs.Serialize(optsSerializer)
	}); err != nil {
		stats.RouterSolicitDropped.Increment()
		ctx.RSLogger().Warningf("failed to send router solicitation on NIC %d from %s: %s", nicID, src, err)
	} else {
		stats.RouterSolicitSent.Increment()
	}

	s.remaining--
	if s.remaining == 0 {
		return
	}

	c := ctx.NDPConfigurations(nicID)
	c.validate()
	ctx.ScheduleTimer(nicID, c.RtrSolicitationInterval)
}

// StopSolicitingRouters stops soliciting routers on nicID. It is a no-op if
// routers are not being solicited.
func StopSolicitingRouters(ctx RSContext, nicID tcpip.NICID) {
	if s := ctx.RouterSolicitationState(nicID); s != nil {
		s.remaining = 0
	}
	ctx.CancelTimer(nicID)
}
