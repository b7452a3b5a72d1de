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

// Package stack holds the contracts between the network protocol code and
// the link endpoints it transmits through.
package stack

import (
	"errors"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/buffer"
)

// ErrLinkClosed is returned by WritePacket once an endpoint is closed.
var ErrLinkClosed = errors.New("link endpoint closed")

// LinkEndpoint is the interface implemented by data link layer protocols
// (e.g., ethernet, loopback, raw) and used by network layer protocols to send
// packets out through the implementer's data link endpoint.
type LinkEndpoint interface {
	// MTU is the maximum transmission unit for this endpoint. This is
	// usually dictated by the backing physical network; when such a
	// physical network doesn't exist, the limit is generally 64k, which
	// includes the maximum size of an IP packet.
	MTU() uint32

	// LinkAddress returns the link address (typically a MAC) of the
	// link endpoint. It is empty for links without addresses.
	LinkAddress() tcpip.LinkAddress

	// WritePacket writes a complete network layer packet of the given
	// protocol. The endpoint must not retain pkt after returning.
	WritePacket(protocol tcpip.NetworkProtocolNumber, pkt buffer.View) error
}
