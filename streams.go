// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import "encoding/json"

type deviceRPCEnvelope struct {
	Type string `json:"type"`
}

// dispatchStream routes one STREAM frame. JSON carrying a "type" on the
// device RPC stream is reported as a stream response; everything else goes
// to the registered handler, if any.
func (m *Manager) dispatchStream(c *connection, f StreamFrame) {
	deviceID := c.deviceID

	if f.StreamID == m.config.DeviceRPCStreamID {
		var env deviceRPCEnvelope
		if err := json.Unmarshal(f.Data, &env); err == nil && env.Type != "" {
			payload := json.RawMessage(append([]byte(nil), f.Data...))
			c.log().Debugf("Device RPC response %q received", env.Type)
			m.notify(func(o Observer) { o.StreamResponse(deviceID, payload) })
			return
		}
	}

	handler, exists := c.serviceHandlers[f.StreamID]
	if !exists {
		c.log().Debugf("No handler for stream %d, dropping %d bytes", f.StreamID, len(f.Data))
		return
	}

	data := f.Data
	m.notify(func(Observer) { handler(deviceID, data) })
}
