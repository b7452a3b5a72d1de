// Copyright 2020 The gVisor Authors.
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

package ipv6

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
	"github.com/vsrinivas/fuchsia-sub084/pkg/rand"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
)

// Errors returned by RouterSolicitor.
var (
	ErrUnknownNIC     = errors.New("unknown NIC")
	ErrDuplicateNIC   = errors.New("duplicate NIC")
	ErrInvalidAddress = errors.New("invalid IPv6 unicast address")
)

// sendFailureLogInterval bounds how often send failures are logged.
const sendFailureLogInterval = time.Second

// RouterSolicitorOptions configures a RouterSolicitor.
type RouterSolicitorOptions struct {
	// Clock drives the solicitation timers. Required.
	Clock tcpip.Clock

	// Sender transmits the solicitations. Required.
	Sender RSSender

	// Rand produces the initial delays. If nil, a source seeded from
	// pkg/rand is used.
	Rand RandContext

	// Logger receives send failures. If nil, the global logger is used,
	// rate limited.
	Logger log.Logger

	// Stats receives the counters. If nil, the solicitor allocates its
	// own.
	Stats *Stats
}

// NICOptions configures one NIC of a RouterSolicitor.
type NICOptions struct {
	// LinkAddress is carried in the source link-layer address option.
	LinkAddress tcpip.LinkAddress

	// Configs holds the solicitation parameters; invalid values are
	// replaced by defaults.
	Configs NDPConfigurations
}

type nicState struct {
	configs  NDPConfigurations
	linkAddr tcpip.LinkAddress
	src      tcpip.Address
	enabled  bool
	rs       RouterSolicitationState

	// timer is the pending solicitation timer, if any.
	timer tcpip.Timer

	// done is used to let the timer know that it should not send a
	// solicitation because it was stopped after it fired but before it
	// could obtain the lock.
	done *bool
}

// RouterSolicitor runs the Router Solicitation state machine for a set of
// NICs over a tcpip.Clock. It is safe for concurrent use.
type RouterSolicitor struct {
	clock  tcpip.Clock
	sender RSSender
	rand   RandContext
	logger log.Logger
	stats  *Stats

	mu   sync.Mutex
	nics map[tcpip.NICID]*nicState
}

// NewRouterSolicitor returns a RouterSolicitor with no NICs.
func NewRouterSolicitor(opts RouterSolicitorOptions) (*RouterSolicitor, error) {
	if opts.Clock == nil {
		return nil, errors.New("router solicitor requires a clock")
	}
	if opts.Sender == nil {
		return nil, errors.New("router solicitor requires a sender")
	}
	if opts.Rand == nil {
		src, err := rand.NewDurationSource()
		if err != nil {
			return nil, fmt.Errorf("seeding solicitation delays: %w", err)
		}
		opts.Rand = src
	}
	if opts.Logger == nil {
		opts.Logger = log.BasicRateLimitedLogger(sendFailureLogInterval)
	}
	if opts.Stats == nil {
		opts.Stats = &Stats{}
	}
	return &RouterSolicitor{
		clock:  opts.Clock,
		sender: opts.Sender,
		rand:   opts.Rand,
		logger: opts.Logger,
		stats:  opts.Stats,
		nics:   make(map[tcpip.NICID]*nicState),
	}, nil
}

// Stats returns the solicitor's counters.
func (r *RouterSolicitor) Stats() *Stats {
	return r.stats
}

// AddNIC adds a disabled NIC.
func (r *RouterSolicitor) AddNIC(nicID tcpip.NICID, opts NICOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nics[nicID]; ok {
		return fmt.Errorf("NIC %d: %w", nicID, ErrDuplicateNIC)
	}
	opts.Configs.validate()
	r.nics[nicID] = &nicState{
		configs:  opts.Configs,
		linkAddr: opts.LinkAddress,
	}
	return nil
}

// RemoveNIC stops soliciting on nicID and forgets it.
func (r *RouterSolicitor) RemoveNIC(nicID tcpip.NICID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nics[nicID]; !ok {
		return fmt.Errorf("NIC %d: %w", nicID, ErrUnknownNIC)
	}
	StopSolicitingRouters(locked{r}, nicID)
	delete(r.nics, nicID)
	return nil
}

// SetSourceAddress sets the address solicitations on nicID are sent from.
// Solicitations sent from a specified address carry the NIC's link address.
func (r *RouterSolicitor) SetSourceAddress(nicID tcpip.NICID, addr tcpip.Address) error {
	if len(addr) != header.IPv6AddressSize || header.IsV6MulticastAddress(addr) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nics[nicID]
	if !ok {
		return fmt.Errorf("NIC %d: %w", nicID, ErrUnknownNIC)
	}
	n.src = addr
	return nil
}

// ClearSourceAddress makes solicitations on nicID use the unspecified
// address.
func (r *RouterSolicitor) ClearSourceAddress(nicID tcpip.NICID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nics[nicID]
	if !ok {
		return fmt.Errorf("NIC %d: %w", nicID, ErrUnknownNIC)
	}
	n.src = ""
	return nil
}

// Enable brings nicID up and starts soliciting routers on it. Enabling an
// enabled NIC does nothing.
func (r *RouterSolicitor) Enable(nicID tcpip.NICID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nics[nicID]
	if !ok {
		return fmt.Errorf("NIC %d: %w", nicID, ErrUnknownNIC)
	}
	if n.enabled {
		return nil
	}
	n.enabled = true
	StartSolicitingRouters(locked{r}, nicID)
	return nil
}

// Disable brings nicID down, stopping any solicitation in progress.
func (r *RouterSolicitor) Disable(nicID tcpip.NICID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nics[nicID]
	if !ok {
		return fmt.Errorf("NIC %d: %w", nicID, ErrUnknownNIC)
	}
	n.enabled = false
	StopSolicitingRouters(locked{r}, nicID)
	return nil
}

// HandleRouterAdvertisement stops soliciting on nicID: once a router has
// advertised itself there is nothing left to solicit, as per RFC 4861 section
// 6.3.7.
func (r *RouterSolicitor) HandleRouterAdvertisement(nicID tcpip.NICID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nics[nicID]; !ok {
		return fmt.Errorf("NIC %d: %w", nicID, ErrUnknownNIC)
	}
	StopSolicitingRouters(locked{r}, nicID)
	return nil
}

// Soliciting returns true if a solicitation is pending on nicID.
func (r *RouterSolicitor) Soliciting(nicID tcpip.NICID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nics[nicID]
	if !ok {
		return false
	}
	_, running := n.rs.Remaining()
	return running
}

// locked implements RSContext for a RouterSolicitor whose mu is held.
type locked struct {
	r *RouterSolicitor
}

var _ RSContext = locked{}

// RouterSolicitationState implements RSDeviceContext.
func (l locked) RouterSolicitationState(nicID tcpip.NICID) *RouterSolicitationState {
	if n, ok := l.r.nics[nicID]; ok {
		return &n.rs
	}
	return nil
}

// NDPConfigurations implements RSDeviceContext.
func (l locked) NDPConfigurations(nicID tcpip.NICID) NDPConfigurations {
	if n, ok := l.r.nics[nicID]; ok {
		return n.configs
	}
	return DefaultNDPConfigurations()
}

// LinkAddress implements RSDeviceContext.
func (l locked) LinkAddress(nicID tcpip.NICID) tcpip.LinkAddress {
	if n, ok := l.r.nics[nicID]; ok {
		return n.linkAddr
	}
	return ""
}

// SourceAddress implements RSDeviceContext.
func (l locked) SourceAddress(nicID tcpip.NICID) (tcpip.Address, bool) {
	if n, ok := l.r.nics[nicID]; ok && len(n.src) != 0 {
		return n.src, true
	}
	return "", false
}

// ScheduleTimer implements TimerContext.
func (l locked) ScheduleTimer(nicID tcpip.NICID, d time.Duration) {
	n, ok := l.r.nics[nicID]
	if !ok {
		return
	}
	l.CancelTimer(nicID)

	var done bool
	n.done = &done
	r := l.r
	n.timer = r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if done {
			// StopSolicitingRouters or a newer ScheduleTimer ran while
			// this timer was waiting for the lock.
			return
		}
		done = true
		n.timer = nil
		n.done = nil

		HandleRSTimer(locked{r}, nicID)
	})
}

// CancelTimer implements TimerContext.
func (l locked) CancelTimer(nicID tcpip.NICID) bool {
	n, ok := l.r.nics[nicID]
	if !ok || n.timer == nil {
		return false
	}
	n.timer.Stop()
	*n.done = true
	n.timer = nil
	n.done = nil
	return true
}

// UniformDuration implements RandContext.
func (l locked) UniformDuration(max time.Duration) time.Duration {
	return l.r.rand.UniformDuration(max)
}

// SendRouterSolicitation implements RSSender.
func (l locked) SendRouterSolicitation(nicID tcpip.NICID, src tcpip.Address, bodyLen int, fill func(header.NDPRouterSolicit)) error {
	return l.r.sender.SendRouterSolicitation(nicID, src, bodyLen, fill)
}

// RSStats implements RSContext.
func (l locked) RSStats() *Stats {
	return l.r.stats
}

// RSLogger implements RSContext.
func (l locked) RSLogger() log.Logger {
	return l.r.logger
}
