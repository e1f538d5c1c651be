// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"encoding/hex"
	"fmt"
)

/////////////////////////////////////////////////////////////
//                           ENUMS                         //
/////////////////////////////////////////////////////////////

type Role uint8

const (
	CLIENT Role = iota
	SERVER
)

func (r Role) String() string {
	switch r {
	case CLIENT:
		return "CLIENT"
	case SERVER:
		return "SERVER"
	default:
		return "INVALID"
	}
}

type ConnectionState uint8

const (
	INITIAL ConnectionState = iota
	HANDSHAKE
	ESTABLISHED
	CLOSED
)

func (s ConnectionState) String() string {
	switch s {
	case INITIAL:
		return "INITIAL"
	case HANDSHAKE:
		return "HANDSHAKE"
	case ESTABLISHED:
		return "ESTABLISHED"
	case CLOSED:
		return "CLOSED"
	default:
		return "INVALID"
	}
}

// PacketType is carried in the low two bits of the first header byte.
type PacketType uint8

const (
	PKT_INITIAL   PacketType = 0x00
	PKT_HANDSHAKE PacketType = 0x01
	PKT_PROTECTED PacketType = 0x02
	PKT_RETRY     PacketType = 0x03
)

func (t PacketType) String() string {
	switch t {
	case PKT_INITIAL:
		return "INITIAL"
	case PKT_HANDSHAKE:
		return "HANDSHAKE"
	case PKT_PROTECTED:
		return "PROTECTED"
	case PKT_RETRY:
		return "RETRY"
	default:
		return fmt.Sprintf("PACKET(%d)", uint8(t))
	}
}

type FrameType uint8

const (
	FRAME_ACK              FrameType = 0x02
	FRAME_STREAM           FrameType = 0x08
	FRAME_VC_INIT          FrameType = 0x10
	FRAME_VC_RESPONSE      FrameType = 0x11
	FRAME_CONNECTION_CLOSE FrameType = 0x1c
	FRAME_HEARTBEAT        FrameType = 0x20
	FRAME_DISCOVERY        FrameType = 0x30
)

func (t FrameType) String() string {
	switch t {
	case FRAME_ACK:
		return "ACK"
	case FRAME_STREAM:
		return "STREAM"
	case FRAME_VC_INIT:
		return "VC_INIT"
	case FRAME_VC_RESPONSE:
		return "VC_RESPONSE"
	case FRAME_CONNECTION_CLOSE:
		return "CONNECTION_CLOSE"
	case FRAME_HEARTBEAT:
		return "HEARTBEAT"
	case FRAME_DISCOVERY:
		return "DISCOVERY"
	default:
		return fmt.Sprintf("FRAME(0x%02x)", uint8(t))
	}
}

/////////////////////////////////////////////////////////////
//                           TYPES                         //
/////////////////////////////////////////////////////////////

// ConnectionID is an opaque connection identifier chosen by the initiator.
type ConnectionID []byte

func (id ConnectionID) String() string {
	return hex.EncodeToString(id)
}

// Close reasons reported to observers.
const (
	ReasonUserRequested     = "User requested"
	ReasonHandshakeTimeout  = "Handshake timeout"
	ReasonIdleTimeout       = "Idle timeout"
	ReasonInvalidCredential = "Invalid credential"
	ReasonReplaced          = "Replaced by new handshake"
	ReasonSendFailed        = "Send failed"
	ReasonShutdown          = "Shutdown"
)

// ConnectionInfo is a read-only snapshot of one connection.
type ConnectionInfo struct {
	LocalConnectionID  string `json:"localConnectionId" yaml:"localConnectionId"`
	RemoteConnectionID string `json:"remoteConnectionId" yaml:"remoteConnectionId"`
	DeviceID           string `json:"deviceId" yaml:"deviceId"`
	Role               string `json:"role" yaml:"role"`
	State              string `json:"state" yaml:"state"`
	Address            string `json:"address" yaml:"address"`
	Port               int    `json:"port" yaml:"port"`
	PacketsSent        uint64 `json:"packetsSent" yaml:"packetsSent"`
	HighestReceived    uint64 `json:"highestReceivedPacketNumber" yaml:"highestReceivedPacketNumber"`
	CreatedAt          string `json:"createdAt" yaml:"createdAt"`
	LastActivityAt     string `json:"lastActivityAt" yaml:"lastActivityAt"`
}
