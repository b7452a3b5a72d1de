// Copyright 2018 The gVisor Authors.
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

// Package channel provides the implemention of channel-based data-link layer
// endpoints. Such endpoints store outbound packets in a channel so tests and
// tools can inspect what the network layer transmits.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/buffer"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/stack"
)

// ErrQueueFull is returned by WritePacket when the outbound queue has no room.
var ErrQueueFull = errors.New("outbound packet queue full")

// PacketInfo holds all the information about an outbound packet.
type PacketInfo struct {
	Pkt   buffer.View
	Proto tcpip.NetworkProtocolNumber
}

// Notification is the interface for receiving notification from the packet
// queue.
type Notification interface {
	// WriteNotify will be called when a write happens to the queue.
	WriteNotify()
}

// NotificationHandle is an opaque handle to the registered notification target.
// It can be used to unregister the notification when no longer interested.
type NotificationHandle struct {
	n Notification
}

type queue struct {
	// c is the outbound packet channel.
	c chan PacketInfo
	// mu protects fields below.
	mu     sync.RWMutex
	closed bool
	notify []*NotificationHandle
}

func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.c)
	}
}

func (q *queue) Read() (PacketInfo, bool) {
	select {
	case p, ok := <-q.c:
		return p, ok
	default:
		return PacketInfo{}, false
	}
}

func (q *queue) ReadContext(ctx context.Context) (PacketInfo, bool) {
	select {
	case pkt, ok := <-q.c:
		return pkt, ok
	case <-ctx.Done():
		return PacketInfo{}, false
	}
}

func (q *queue) Write(p PacketInfo) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return stack.ErrLinkClosed
	}
	wrote := false
	select {
	case q.c <- p:
		wrote = true
	default:
	}
	notify := q.notify
	q.mu.RUnlock()

	if !wrote {
		return ErrQueueFull
	}
	// Send notification outside of lock.
	for _, h := range notify {
		h.n.WriteNotify()
	}
	return nil
}

func (q *queue) Num() int {
	return len(q.c)
}

func (q *queue) AddNotify(notify Notification) *NotificationHandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := &NotificationHandle{n: notify}
	q.notify = append(q.notify, h)
	return h
}

func (q *queue) RemoveNotify(handle *NotificationHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Make a copy, since we reads the array outside of lock when notifying.
	notify := make([]*NotificationHandle, 0, len(q.notify))
	for _, h := range q.notify {
		if h != handle {
			notify = append(notify, h)
		}
	}
	q.notify = notify
}

// Endpoint is link layer endpoint that stores outbound packets in a channel.
type Endpoint struct {
	mtu      uint32
	linkAddr tcpip.LinkAddress

	// Outbound packet queue.
	q *queue
}

var _ stack.LinkEndpoint = (*Endpoint)(nil)

// New creates a new channel endpoint.
func New(size int, mtu uint32, linkAddr tcpip.LinkAddress) *Endpoint {
	return &Endpoint{
		q: &queue{
			c: make(chan PacketInfo, size),
		},
		mtu:      mtu,
		linkAddr: linkAddr,
	}
}

// Close closes e. Further writes fail with stack.ErrLinkClosed. Reads
// continue to succeed until all packets are read.
func (e *Endpoint) Close() {
	e.q.Close()
}

// Read does non-blocking read one packet from the outbound packet queue.
func (e *Endpoint) Read() (PacketInfo, bool) {
	return e.q.Read()
}

// ReadContext does blocking read for one packet from the outbound packet queue.
// It can be cancelled by ctx, and in this case, it returns false.
func (e *Endpoint) ReadContext(ctx context.Context) (PacketInfo, bool) {
	return e.q.ReadContext(ctx)
}

// Drain removes all outbound packets from the channel and counts them.
func (e *Endpoint) Drain() int {
	c := 0
	for {
		if _, ok := e.Read(); !ok {
			return c
		}
		c++
	}
}

// NumQueued returns the number of packet queued for outbound.
func (e *Endpoint) NumQueued() int {
	return e.q.Num()
}

// MTU implements stack.LinkEndpoint.MTU.
func (e *Endpoint) MTU() uint32 {
	return e.mtu
}

// LinkAddress implements stack.LinkEndpoint.LinkAddress.
func (e *Endpoint) LinkAddress() tcpip.LinkAddress {
	return e.linkAddr
}

// WritePacket implements stack.LinkEndpoint.WritePacket. It stores a copy of
// pkt into the channel.
func (e *Endpoint) WritePacket(protocol tcpip.NetworkProtocolNumber, pkt buffer.View) error {
	return e.q.Write(PacketInfo{
		Pkt:   buffer.NewViewFromBytes(pkt),
		Proto: protocol,
	})
}

// AddNotify adds a notification target for receiving event about outgoing
// packets.
func (e *Endpoint) AddNotify(notify Notification) *NotificationHandle {
	return e.q.AddNotify(notify)
}

// RemoveNotify removes handle from the list of notification targets.
func (e *Endpoint) RemoveNotify(handle *NotificationHandle) {
	e.q.RemoveNotify(handle)
}
