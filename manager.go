// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ApplicationStreamID carries SendApplicationData payloads.
const ApplicationStreamID uint8 = 0

var (
	ErrNotConnected  = errors.New("device is not connected")
	ErrUnknownDevice = errors.New("unknown device")
	ErrShutdown      = errors.New("connection manager is shut down")
)

// Manager owns the connection table and drives every connection through
// its handshake. All inbound packets, commands and timer callbacks are
// serialized on one mutex.
type Manager struct {
	mtx sync.Mutex

	config     Config
	transport  Transport
	verifier   Verifier
	credential Credential
	observer   Observer

	table   connectionTable
	pending []func(Observer)

	registry     *prometheus.Registry
	metrics      *metrics
	shuttingDown bool
}

func NewManager(config Config, transport Transport, verifier Verifier, credential Credential, observer Observer) *Manager {
	if observer == nil {
		observer = NewDummyObserver()
	}
	registry := prometheus.NewRegistry()

	m := Manager{
		config:     config.withDefaults(),
		transport:  transport,
		verifier:   verifier,
		credential: credential,
		observer:   observer,
		table:      newConnectionTable(),
		registry:   registry,
		metrics:    newMetrics(registry),
	}

	if m.config.PlaintextProtected {
		m.log().Warnf("PROTECTED packets are sent WITHOUT encryption (plaintext_protected = true)")
	}

	return &m
}

func (m *Manager) log() *logrus.Entry {
	return logrus.WithField("credential", m.credential.ID)
}

// Registry exposes the manager's metrics.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// unlock releases the manager lock and then delivers queued notifications.
func (m *Manager) unlock() {
	events := m.pending
	m.pending = nil
	m.mtx.Unlock()

	for _, ev := range events {
		ev(m.observer)
	}
}

func (m *Manager) notify(ev func(Observer)) {
	m.pending = append(m.pending, ev)
}

// Initiate opens a client connection to a device and sends the INITIAL
// packet. An ESTABLISHED connection to the same address is kept as is; a
// half-open one is torn down first.
func (m *Manager) Initiate(ctx context.Context, deviceID, address string, port int, cred Credential) error {
	m.mtx.Lock()
	defer m.unlock()

	if m.shuttingDown {
		return ErrShutdown
	}

	if c, exists := m.table.GetByAddr(address, port); exists {
		if c.state == ESTABLISHED {
			c.log().Debugf("Already connected, not initiating again")
			return nil
		}
		c.log().Infof("Tearing down unfinished handshake before initiating a new one")
		m.closeConnection(c, ReasonReplaced)
	}

	localID, err := newConnectionID(m.config.ConnectionIDLength)
	if err != nil {
		return err
	}
	remoteID, err := newConnectionID(m.config.ConnectionIDLength)
	if err != nil {
		return err
	}
	challenge, err := newChallenge()
	if err != nil {
		return err
	}

	c := newConnection(CLIENT, localID, remoteID, address, port, cred)
	c.deviceID = deviceID
	c.challenge = challenge

	if err := m.table.Add(c); err != nil {
		return err
	}
	m.metrics.activeConnections.Set(float64(m.table.Len()))
	m.armHandshakeTimer(c)

	c.log().Infof("Initiating handshake")

	err = m.sendPacket(ctx, c, PKT_INITIAL, VCInitFrame{
		Credential: cred,
		Challenge:  challenge,
		Timestamp:  c.createdAt.UnixMilli(),
	})
	if err != nil {
		m.closeConnection(c, ReasonSendFailed)
		return errors.Wrapf(err, "could not send INITIAL to %s", addrKey(address, port))
	}

	return nil
}

func (m *Manager) IsConnected(deviceID string) bool {
	m.mtx.Lock()
	defer m.unlock()

	c, exists := m.table.GetByDevice(deviceID)
	return exists && c.state == ESTABLISHED
}

// SendApplicationData sends data on ApplicationStreamID.
func (m *Manager) SendApplicationData(ctx context.Context, deviceID string, data []byte) error {
	return m.SendStreamData(ctx, deviceID, ApplicationStreamID, data)
}

func (m *Manager) SendStreamData(ctx context.Context, deviceID string, streamID uint8, data []byte) error {
	m.mtx.Lock()
	defer m.unlock()

	c, exists := m.table.GetByDevice(deviceID)
	if !exists || c.state != ESTABLISHED {
		return errors.Wrapf(ErrNotConnected, "device %s", deviceID)
	}

	err := m.sendPacket(ctx, c, PKT_PROTECTED, StreamFrame{StreamID: streamID, Data: data})
	if err != nil {
		return errors.Wrapf(err, "could not send stream %d data to %s", streamID, deviceID)
	}
	return nil
}

// Disconnect closes the device's connection, telling the peer first if
// the connection is ESTABLISHED.
func (m *Manager) Disconnect(ctx context.Context, deviceID string) error {
	m.mtx.Lock()
	defer m.unlock()

	c, exists := m.table.GetByDevice(deviceID)
	if !exists {
		return errors.Wrapf(ErrUnknownDevice, "device %s", deviceID)
	}

	if c.state == ESTABLISHED {
		err := m.sendPacket(ctx, c, PKT_PROTECTED, ConnectionCloseFrame{Reason: ReasonUserRequested})
		if err != nil {
			c.log().Errorf("Could not send CONNECTION_CLOSE: %v", err)
		}
	}

	m.closeConnection(c, ReasonUserRequested)
	return nil
}

func (m *Manager) RegisterServiceHandler(deviceID string, streamID uint8, handler StreamHandler) error {
	m.mtx.Lock()
	defer m.unlock()

	c, exists := m.table.GetByDevice(deviceID)
	if !exists {
		return errors.Wrapf(ErrUnknownDevice, "device %s", deviceID)
	}
	c.serviceHandlers[streamID] = handler
	c.log().Debugf("Registered handler for stream %d", streamID)
	return nil
}

func (m *Manager) UnregisterServiceHandler(deviceID string, streamID uint8) {
	m.mtx.Lock()
	defer m.unlock()

	if c, exists := m.table.GetByDevice(deviceID); exists {
		delete(c.serviceHandlers, streamID)
	}
}

func (m *Manager) Connections() []ConnectionInfo {
	m.mtx.Lock()
	defer m.unlock()

	infos := []ConnectionInfo{}
	for _, c := range m.table.All() {
		infos = append(infos, c.info())
	}
	return infos
}

func (m *Manager) Shutdown() {
	m.mtx.Lock()
	defer m.unlock()

	m.log().Infof("Shutting down connection manager...")
	m.shuttingDown = true

	for _, c := range m.table.All() {
		m.closeConnection(c, ReasonShutdown)
	}
}

// HandleDatagram feeds one inbound datagram into the state machine. It
// reports whether the datagram looked like a QUICVC packet at all; anything
// malformed is dropped without error.
func (m *Manager) HandleDatagram(ctx context.Context, data []byte, address string, port int) bool {
	if !IsLongHeader(data) {
		return false
	}

	m.mtx.Lock()
	defer m.unlock()
	defer func() {
		if r := recover(); r != nil {
			m.metrics.packetsDropped.WithLabelValues("panic").Inc()
			m.log().WithField("peer", addrKey(address, port)).
				Errorf("Recovered from panic while processing packet: %v\n%s", r, debug.Stack())
		}
	}()

	h, payload, ok := ParseHeader(data)
	if !ok {
		m.metrics.packetsDropped.WithLabelValues("malformed").Inc()
		m.log().WithField("peer", addrKey(address, port)).Debugf("Dropping malformed packet (%d bytes)", len(data))
		return true
	}
	if h.Version != m.config.Version {
		m.metrics.packetsDropped.WithLabelValues("version").Inc()
		m.log().WithField("peer", addrKey(address, port)).Debugf("Dropping packet with unsupported version 0x%08x", h.Version)
		return true
	}

	m.processPacket(ctx, h, data[:len(data)-len(payload)], payload, address, port)
	return true
}
