// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"context"
	"time"
)

// Every timer callback takes the manager lock and checks that the
// connection is still in the table and still owns the firing timer. A timer
// stopped after it already fired therefore does nothing.

func (m *Manager) armHandshakeTimer(c *connection) {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
	}

	id := c.localID
	var t *time.Timer
	t = time.AfterFunc(m.config.HandshakeTimeout, func() {
		m.mtx.Lock()
		defer m.unlock()

		cur, exists := m.table.Get(id)
		if !exists || cur.handshakeTimer != t {
			return
		}
		cur.handshakeTimer = nil
		if cur.state != ESTABLISHED {
			m.closeConnection(cur, ReasonHandshakeTimeout)
		}
	})
	c.handshakeTimer = t
}

func (m *Manager) armHeartbeatTimer(c *connection) {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
	}

	id := c.localID
	var t *time.Timer
	t = time.AfterFunc(m.config.HeartbeatInterval, func() {
		m.mtx.Lock()
		defer m.unlock()

		cur, exists := m.table.Get(id)
		if !exists || cur.heartbeatTimer != t || cur.state != ESTABLISHED {
			return
		}
		cur.heartbeatTimer = nil

		m.sendHeartbeat(cur)

		if cur.state == ESTABLISHED {
			m.armHeartbeatTimer(cur)
		}
	})
	c.heartbeatTimer = t
}

// resetIdleTimer restarts the idle window. It is armed only once the
// connection is ESTABLISHED; before that the handshake timer applies.
func (m *Manager) resetIdleTimer(c *connection) {
	if c.state != ESTABLISHED {
		return
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}

	id := c.localID
	var t *time.Timer
	t = time.AfterFunc(m.config.IdleTimeout, func() {
		m.mtx.Lock()
		defer m.unlock()

		cur, exists := m.table.Get(id)
		if !exists || cur.idleTimer != t {
			return
		}
		cur.idleTimer = nil
		m.closeConnection(cur, ReasonIdleTimeout)
	})
	c.idleTimer = t
}

// sendHeartbeat sends a HEARTBEAT, piggybacking an ACK for every packet
// received since the last one.
func (m *Manager) sendHeartbeat(c *connection) {
	c.heartbeatSeq++
	frames := []Frame{HeartbeatFrame{
		Timestamp: time.Now().UnixMilli(),
		Sequence:  c.heartbeatSeq,
	}}
	if len(c.pendingAcks) > 0 {
		frames = append(frames, AckFrame{
			LargestAcknowledged: c.highestReceived,
			Packets:             append([]uint64(nil), c.pendingAcks...),
		})
	}

	if err := m.sendPacket(context.Background(), c, PKT_PROTECTED, frames...); err != nil {
		c.log().Errorf("Could not send HEARTBEAT: %v", err)
		return
	}
	c.pendingAcks = c.pendingAcks[:0]
	c.log().Debugf("HEARTBEAT %d sent", c.heartbeatSeq)
}
