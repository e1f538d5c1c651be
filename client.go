// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import "encoding/json"

// Observer receives connection lifecycle notifications. Calls are made
// after the manager lock is released, in the order the events happened.
type Observer interface {
	// handshake-complete
	HandshakeComplete(deviceID string)
	// connection-established
	ConnectionEstablished(deviceID string, remote VerifiedInfo)
	// connection-closed
	ConnectionClosed(deviceID string, reason string)
	// device-provisioned
	DeviceProvisioned(deviceID string, ownerID string)
	// stream-response
	StreamResponse(deviceID string, payload json.RawMessage)
}

type DummyObserver struct{}

func NewDummyObserver() *DummyObserver {
	return &DummyObserver{}
}

func (o DummyObserver) HandshakeComplete(deviceID string) {}

func (o DummyObserver) ConnectionEstablished(deviceID string, remote VerifiedInfo) {}

func (o DummyObserver) ConnectionClosed(deviceID string, reason string) {}

func (o DummyObserver) DeviceProvisioned(deviceID string, ownerID string) {}

func (o DummyObserver) StreamResponse(deviceID string, payload json.RawMessage) {}
