// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const remoteClosedPrefix = "Remote closed: "

func (m *Manager) processPacket(ctx context.Context, h Header, rawHeader, payload []byte, address string, port int) {
	var frames []Frame
	if h.Type == PKT_INITIAL || h.Type == PKT_HANDSHAKE {
		frames = ParseFrames(payload)
	}

	c, found := m.table.Get(h.DCID)
	if !found && carriesVCResponse(frames) {
		// An embedded peer may answer with its own ids before it learned ours.
		// A VC_INIT from the same address is a new connection, never an answer.
		if byAddr, exists := m.table.GetByAddr(address, port); exists && byAddr.role == CLIENT && byAddr.state != ESTABLISHED {
			c, found = byAddr, true
		}
	}

	switch h.Type {
	case PKT_INITIAL:
		if !found {
			for _, f := range frames {
				if vcInit, ok := f.(VCInitFrame); ok {
					m.acceptInitial(ctx, h, vcInit, address, port)
					return
				}
			}
			m.drop("no_vc_init", log.WithField("peer", addrKey(address, port)), "INITIAL packet without VC_INIT for unknown connection")
			return
		}
		m.handleHandshakeFrames(ctx, c, h, frames)

	case PKT_HANDSHAKE:
		if !found {
			m.drop("unknown_connection", log.WithField("peer", addrKey(address, port)), "HANDSHAKE packet for unknown connection %s", h.DCID)
			return
		}
		m.handleHandshakeFrames(ctx, c, h, frames)

	case PKT_PROTECTED:
		if !found {
			m.drop("unknown_connection", log.WithField("peer", addrKey(address, port)), "PROTECTED packet for unknown connection %s", h.DCID)
			return
		}
		if c.state != ESTABLISHED {
			m.drop("not_established", c.log(), "PROTECTED packet before handshake completed")
			return
		}
		m.handleProtected(ctx, c, h, rawHeader, payload)

	default:
		m.drop("unsupported_type", log.WithField("peer", addrKey(address, port)), "Unsupported %s packet", h.Type)
	}
}

func carriesVCResponse(frames []Frame) bool {
	for _, f := range frames {
		if _, ok := f.(VCResponseFrame); ok {
			return true
		}
	}
	return false
}

func (m *Manager) drop(reason string, entry *log.Entry, format string, args ...interface{}) {
	m.metrics.packetsDropped.WithLabelValues(reason).Inc()
	entry.Debugf("Dropping packet: "+format, args...)
}

// received does the bookkeeping shared by every accepted packet.
func (m *Manager) received(c *connection, h Header, pn uint64) {
	c.recordReceived(pn, m.config.MaxPendingAcks)
	c.touch()
	m.metrics.packetsReceived.WithLabelValues(h.Type.String()).Inc()
	if c.state == ESTABLISHED {
		m.resetIdleTimer(c)
	}
}

// acceptInitial creates the server side of a connection for an unmatched
// INITIAL packet. The client's destination id becomes our local id.
func (m *Manager) acceptInitial(ctx context.Context, h Header, f VCInitFrame, address string, port int) {
	if m.shuttingDown {
		return
	}

	c := newConnection(SERVER, h.DCID, h.SCID, address, port, m.credential)
	c.remoteChallenge = f.Challenge

	challenge, err := newChallenge()
	if err != nil {
		c.log().Errorf("Cannot accept connection: %v", err)
		return
	}
	c.challenge = challenge

	if err := m.table.Add(c); err != nil {
		c.log().Warnf("Cannot accept connection: %v", err)
		return
	}
	m.metrics.activeConnections.Set(float64(m.table.Len()))
	m.armHandshakeTimer(c)
	m.received(c, h, decodePacketNumber(0, false, h.PacketNumber))

	c.log().Infof("VC_INIT received, verifying credential %s", f.Credential.ID)

	info, err := m.verifier.Verify(ctx, f.Credential, f.Credential.Subject.ID)
	if err != nil || info == nil {
		c.log().Warnf("Credential verification failed: %v", err)
		m.closeConnection(c, ReasonInvalidCredential)
		return
	}

	cred := f.Credential
	c.remoteCredential = &cred
	c.remoteInfo = info
	m.resolveDevice(c)

	initial := DeriveInitialKeys(cred.ID, c.localCredential.ID).ForRole(SERVER)
	c.initialKeys = &initial

	err = m.sendPacket(ctx, c, PKT_HANDSHAKE, VCResponseFrame{
		Credential:   c.localCredential,
		Challenge:    c.challenge,
		AckChallenge: f.Challenge,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		c.log().Errorf("Could not send VC_RESPONSE: %v", err)
		m.closeConnection(c, ReasonSendFailed)
		return
	}

	c.state = HANDSHAKE
	c.log().Infof("VC_RESPONSE sent")
}

// handleHandshakeFrames processes the frames of an INITIAL or HANDSHAKE
// packet on a known connection. Embedded peers put VC_RESPONSE into
// INITIAL packets, so both types are handled alike.
func (m *Manager) handleHandshakeFrames(ctx context.Context, c *connection, h Header, frames []Frame) {
	m.received(c, h, decodePacketNumber(c.highestReceived, c.receivedAny, h.PacketNumber))

	for _, f := range frames {
		if c.state == CLOSED {
			return
		}
		switch f := f.(type) {
		case VCResponseFrame:
			m.handleVCResponse(ctx, c, h, f)
		case VCInitFrame:
			c.log().Debugf("Ignoring repeated VC_INIT")
		case ConnectionCloseFrame:
			m.closeConnection(c, remoteClosedPrefix+f.Reason)
		default:
			c.log().Debugf("Ignoring %s frame during handshake", f.Type())
		}
	}
}

func (m *Manager) handleVCResponse(ctx context.Context, c *connection, h Header, f VCResponseFrame) {
	if c.state == ESTABLISHED {
		c.log().Debugf("Ignoring VC_RESPONSE on established connection")
		return
	}

	claimed := f.Credential.Subject.ID
	if c.role == CLIENT {
		claimed = c.deviceID
	}

	info, err := m.verifier.Verify(ctx, f.Credential, claimed)
	if err != nil || info == nil {
		c.log().Warnf("Credential verification failed: %v", err)
		m.closeConnection(c, ReasonInvalidCredential)
		return
	}

	if f.AckChallenge != c.challenge {
		c.log().Warnf("VC_RESPONSE does not acknowledge our challenge")
	}

	cred := f.Credential
	c.remoteCredential = &cred
	c.remoteInfo = info

	var clientChallenge, clientProof, serverProof, clientKey, serverKey string
	if c.role == CLIENT {
		if len(h.SCID) > 0 {
			c.remoteID = h.SCID
		}
		c.remoteChallenge = f.Challenge
		initial := DeriveInitialKeys(c.localCredential.ID, cred.ID).ForRole(CLIENT)
		c.initialKeys = &initial

		clientChallenge = c.challenge
		clientProof, serverProof = c.localCredential.Proof.ProofValue, cred.Proof.ProofValue
		clientKey, serverKey = c.localCredential.Subject.PublicKey, info.SubjectPublicKey
	} else {
		clientChallenge = c.remoteChallenge
		clientProof, serverProof = cred.Proof.ProofValue, c.localCredential.Proof.ProofValue
		clientKey, serverKey = info.SubjectPublicKey, c.localCredential.Subject.PublicKey
	}
	m.resolveDevice(c)

	hs := DeriveHandshakeKeys(clientChallenge, clientProof, serverProof).ForRole(c.role)
	c.handshakeKeys = &hs
	app := DeriveApplicationKeys(clientKey, serverKey).ForRole(c.role)
	c.applicationKeys = &app

	if c.role == CLIENT {
		// confirm with our own VC_RESPONSE so the server can finish too
		err := m.sendPacket(ctx, c, PKT_HANDSHAKE, VCResponseFrame{
			Credential:   c.localCredential,
			Challenge:    c.challenge,
			AckChallenge: f.Challenge,
			Timestamp:    time.Now().UnixMilli(),
		})
		if err != nil {
			c.log().Errorf("Could not confirm handshake: %v", err)
			m.closeConnection(c, ReasonSendFailed)
			return
		}
	}

	m.completeHandshake(c)
}

func (m *Manager) resolveDevice(c *connection) {
	if c.deviceID != "" {
		return
	}
	if c.remoteInfo != nil && c.remoteInfo.SubjectDeviceID != "" {
		c.deviceID = c.remoteInfo.SubjectDeviceID
		return
	}
	c.deviceID = fallbackDeviceID(c.remoteID)
}

func (m *Manager) completeHandshake(c *connection) {
	c.state = ESTABLISHED
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	m.armHeartbeatTimer(c)
	m.resetIdleTimer(c)
	m.metrics.handshakes.Inc()

	c.log().Infof("Connection established")

	deviceID := c.deviceID
	info := *c.remoteInfo
	m.notify(func(o Observer) { o.HandshakeComplete(deviceID) })
	m.notify(func(o Observer) { o.ConnectionEstablished(deviceID, info) })

	// NOTE: compares the issuer of the *remote* credential with our own
	// person id, i.e. "this device was issued by us".
	if m.config.OwnerID != "" && info.IssuerID == m.config.OwnerID {
		owner := m.config.OwnerID
		c.log().Infof("Device provisioned for owner %s", owner)
		m.notify(func(o Observer) { o.DeviceProvisioned(deviceID, owner) })
	}
}

func (m *Manager) handleProtected(ctx context.Context, c *connection, h Header, rawHeader, payload []byte) {
	pn := decodePacketNumber(c.highestReceived, c.receivedAny, h.PacketNumber)

	plaintext := payload
	if !m.config.PlaintextProtected {
		var err error
		plaintext, err = openPacket(*c.applicationKeys, rawHeader, pn, payload)
		if err != nil {
			m.drop("decrypt", c.log(), "%v", err)
			return
		}
	}

	m.received(c, h, pn)

	for _, f := range ParseFrames(plaintext) {
		if c.state == CLOSED {
			return
		}
		switch f := f.(type) {
		case HeartbeatFrame:
			c.log().Tracef("HEARTBEAT %d received", f.Sequence)
		case StreamFrame:
			m.dispatchStream(c, f)
		case AckFrame:
			c.log().Debugf("ACK received, largest acknowledged %d (%d packets)", f.LargestAcknowledged, len(f.Packets))
		case DiscoveryFrame:
			c.log().Debugf("DISCOVERY frame received (%d bytes), ignoring", len(f.Payload))
		case ConnectionCloseFrame:
			m.closeConnection(c, remoteClosedPrefix+f.Reason)
		default:
			c.log().Debugf("Ignoring %s frame on established connection", f.Type())
		}
	}
}

// sendPacket frames, numbers and (for PROTECTED) seals the given frames,
// then hands the datagram to the transport.
func (m *Manager) sendPacket(ctx context.Context, c *connection, t PacketType, frames ...Frame) error {
	payload, err := EncodeFrames(frames...)
	if err != nil {
		return err
	}

	pn := c.nextPacketNumber()
	hdr, err := SerializeHeader(Header{
		Type:         t,
		Version:      m.config.Version,
		DCID:         c.remoteID,
		SCID:         c.localID,
		PacketNumber: uint8(pn),
	})
	if err != nil {
		return err
	}

	if t == PKT_PROTECTED {
		if m.config.PlaintextProtected {
			c.log().Warnf("Sending PROTECTED packet %d unencrypted", pn)
		} else {
			if c.applicationKeys == nil {
				return errors.New("no application keys")
			}
			payload, err = sealPacket(*c.applicationKeys, hdr, pn, payload)
			if err != nil {
				return err
			}
		}
	}

	pkt := make([]byte, 0, len(hdr)+len(payload))
	pkt = append(pkt, hdr...)
	pkt = append(pkt, payload...)

	if err := m.transport.Send(ctx, pkt, c.address, c.port); err != nil {
		return err
	}

	m.metrics.packetsSent.WithLabelValues(t.String()).Inc()
	c.log().Tracef("Sent %s packet %d (%d bytes)", t, pn, len(pkt))
	return nil
}

// closeConnection cancels all timers, removes the record and reports the
// reason. Closing twice is a no-op.
func (m *Manager) closeConnection(c *connection, reason string) {
	if c.state == CLOSED {
		return
	}

	c.log().Infof("Closing connection: %s", reason)
	c.stopTimers()
	c.state = CLOSED
	m.table.Remove(c)

	label := reason
	if strings.HasPrefix(reason, remoteClosedPrefix) {
		label = strings.TrimSuffix(remoteClosedPrefix, ": ")
	}
	m.metrics.connectionsClosed.WithLabelValues(label).Inc()
	m.metrics.activeConnections.Set(float64(m.table.Len()))

	deviceID := c.deviceID
	m.notify(func(o Observer) { o.ConnectionClosed(deviceID, reason) })
}
