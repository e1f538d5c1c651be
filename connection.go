// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// StreamHandler receives STREAM frame data for one registered stream id.
type StreamHandler func(deviceID string, data []byte)

type connection struct {
	localID  ConnectionID
	remoteID ConnectionID
	role     Role
	state    ConnectionState
	address  string
	port     int
	deviceID string

	packetNumber    uint64
	highestReceived uint64
	receivedAny     bool
	pendingAcks     []uint64

	localCredential  Credential
	remoteCredential *Credential
	remoteInfo       *VerifiedInfo
	challenge        string
	remoteChallenge  string

	initialKeys     *Keys
	handshakeKeys   *Keys
	applicationKeys *Keys

	serviceHandlers map[uint8]StreamHandler

	handshakeTimer *time.Timer
	heartbeatTimer *time.Timer
	idleTimer      *time.Timer
	heartbeatSeq   uint64

	createdAt      time.Time
	lastActivityAt time.Time
}

func newConnection(role Role, localID, remoteID ConnectionID, address string, port int, cred Credential) *connection {
	now := time.Now()
	return &connection{
		localID:         localID,
		remoteID:        remoteID,
		role:            role,
		state:           INITIAL,
		address:         address,
		port:            port,
		localCredential: cred,
		serviceHandlers: make(map[uint8]StreamHandler),
		createdAt:       now,
		lastActivityAt:  now,
	}
}

func (c *connection) log() *log.Entry {
	entry := log.WithField("conn", c.localID.String()).
		WithField("peer", addrKey(c.address, c.port)).
		WithField("role", c.role.String()).
		WithField("state", c.state.String())
	if c.deviceID != "" {
		entry = entry.WithField("device", c.deviceID)
	}
	return entry
}

// nextPacketNumber hands out the full outbound packet number. Only its
// lowest byte goes on the wire.
func (c *connection) nextPacketNumber() uint64 {
	pn := c.packetNumber
	c.packetNumber++
	return pn
}

// recordReceived tracks the highest packet number seen and queues it for
// acknowledgement. A repeat of the current highest is reported as false
// and not queued again.
func (c *connection) recordReceived(pn uint64, maxPending int) bool {
	if c.receivedAny && pn == c.highestReceived {
		return false
	}
	if !c.receivedAny || pn > c.highestReceived {
		c.highestReceived = pn
		c.receivedAny = true
	}
	if maxPending > 0 {
		c.pendingAcks = append(c.pendingAcks, pn)
		if len(c.pendingAcks) > maxPending {
			c.pendingAcks = c.pendingAcks[len(c.pendingAcks)-maxPending:]
		}
	}
	return true
}

func (c *connection) touch() {
	c.lastActivityAt = time.Now()
}

// stopTimers cancels every armed timer. Callbacks that already fired find
// the handle cleared and return.
func (c *connection) stopTimers() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

func (c *connection) info() ConnectionInfo {
	return ConnectionInfo{
		LocalConnectionID:  c.localID.String(),
		RemoteConnectionID: c.remoteID.String(),
		DeviceID:           c.deviceID,
		Role:               c.role.String(),
		State:              c.state.String(),
		Address:            c.address,
		Port:               c.port,
		PacketsSent:        c.packetNumber,
		HighestReceived:    c.highestReceived,
		CreatedAt:          c.createdAt.Format(time.RFC3339),
		LastActivityAt:     c.lastActivityAt.Format(time.RFC3339),
	}
}

// fallbackDeviceID names a peer whose credential did not carry a device id.
func fallbackDeviceID(remoteID ConnectionID) string {
	id := remoteID
	if len(id) > 8 {
		id = id[:8]
	}
	return "device-" + hex.EncodeToString(id)
}

func newConnectionID(length int) (ConnectionID, error) {
	id := make([]byte, 0, length)
	for len(id) < length {
		u, err := uuid.NewRandom()
		if err != nil {
			return nil, errors.Wrap(err, "cannot generate connection id")
		}
		id = append(id, u[:]...)
	}
	return ConnectionID(id[:length]), nil
}

// newChallenge returns 32 random bytes as 64 hex characters.
func newChallenge() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "cannot generate challenge")
	}
	return hex.EncodeToString(b), nil
}
