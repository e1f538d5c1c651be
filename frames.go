// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

const maxFramePayload = 0xffff

// Frame is one typed unit inside a packet payload. The concrete types below
// are the only implementations.
type Frame interface {
	Type() FrameType
	marshalPayload() ([]byte, error)
}

type VCInitFrame struct {
	Credential Credential `json:"credential"`
	Challenge  string     `json:"challenge"`
	Timestamp  int64      `json:"timestamp"`
}

type VCResponseFrame struct {
	Credential   Credential `json:"credential"`
	Challenge    string     `json:"challenge"`
	AckChallenge string     `json:"ackChallenge"`
	Timestamp    int64      `json:"timestamp"`
}

type StreamFrame struct {
	StreamID uint8
	Data     []byte
}

type AckFrame struct {
	LargestAcknowledged uint64   `json:"largestAcknowledged"`
	Packets             []uint64 `json:"packets,omitempty"`
}

type HeartbeatFrame struct {
	Timestamp int64  `json:"timestamp"`
	Sequence  uint64 `json:"sequence"`
}

// DiscoveryFrame carries an announcement owned by the discovery layer; the
// payload is passed through untouched.
type DiscoveryFrame struct {
	Payload []byte
}

type ConnectionCloseFrame struct {
	Reason    string `json:"reason"`
	ErrorCode uint32 `json:"errorCode,omitempty"`
}

func (VCInitFrame) Type() FrameType          { return FRAME_VC_INIT }
func (VCResponseFrame) Type() FrameType      { return FRAME_VC_RESPONSE }
func (StreamFrame) Type() FrameType          { return FRAME_STREAM }
func (AckFrame) Type() FrameType             { return FRAME_ACK }
func (HeartbeatFrame) Type() FrameType       { return FRAME_HEARTBEAT }
func (DiscoveryFrame) Type() FrameType       { return FRAME_DISCOVERY }
func (ConnectionCloseFrame) Type() FrameType { return FRAME_CONNECTION_CLOSE }

func (f VCInitFrame) marshalPayload() ([]byte, error)          { return json.Marshal(f) }
func (f VCResponseFrame) marshalPayload() ([]byte, error)      { return json.Marshal(f) }
func (f AckFrame) marshalPayload() ([]byte, error)             { return json.Marshal(f) }
func (f HeartbeatFrame) marshalPayload() ([]byte, error)       { return json.Marshal(f) }
func (f ConnectionCloseFrame) marshalPayload() ([]byte, error) { return json.Marshal(f) }

func (f StreamFrame) marshalPayload() ([]byte, error) {
	out := make([]byte, 0, 1+len(f.Data))
	out = append(out, f.StreamID)
	return append(out, f.Data...), nil
}

func (f DiscoveryFrame) marshalPayload() ([]byte, error) {
	return f.Payload, nil
}

// EncodeFrames serializes frames as [type][u16 length][payload] records.
func EncodeFrames(frames ...Frame) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	for _, f := range frames {
		payload, err := f.marshalPayload()
		if err != nil {
			return nil, errors.Wrapf(err, "could not marshal %s frame", f.Type())
		}
		if len(payload) > maxFramePayload {
			return nil, errors.Errorf("%s frame payload too long: %d bytes", f.Type(), len(payload))
		}
		b.AddUint8(uint8(f.Type()))
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(payload)
		})
	}
	return b.Bytes()
}

// ParseFrames decodes as many frames as the buffer holds. A truncated
// trailing record ends parsing; records of unknown type or with an
// undecodable payload are skipped.
func ParseFrames(data []byte) []Frame {
	frames := []Frame{}
	s := cryptobyte.String(data)

	for !s.Empty() {
		var t uint8
		var payload cryptobyte.String
		if !s.ReadUint8(&t) || !s.ReadUint16LengthPrefixed(&payload) {
			break
		}

		f, err := decodeFrame(FrameType(t), payload)
		if err != nil {
			continue
		}
		frames = append(frames, f)
	}

	return frames
}

func decodeFrame(t FrameType, payload []byte) (Frame, error) {
	switch t {
	case FRAME_VC_INIT:
		f := VCInitFrame{}
		err := json.Unmarshal(payload, &f)
		return f, err
	case FRAME_VC_RESPONSE:
		f := VCResponseFrame{}
		err := json.Unmarshal(payload, &f)
		return f, err
	case FRAME_ACK:
		f := AckFrame{}
		err := json.Unmarshal(payload, &f)
		return f, err
	case FRAME_HEARTBEAT:
		f := HeartbeatFrame{}
		err := json.Unmarshal(payload, &f)
		return f, err
	case FRAME_CONNECTION_CLOSE:
		f := ConnectionCloseFrame{}
		err := json.Unmarshal(payload, &f)
		return f, err
	case FRAME_STREAM:
		if len(payload) < 1 {
			return nil, errors.New("empty STREAM frame")
		}
		return StreamFrame{
			StreamID: payload[0],
			Data:     append([]byte{}, payload[1:]...),
		}, nil
	case FRAME_DISCOVERY:
		return DiscoveryFrame{Payload: append([]byte{}, payload...)}, nil
	default:
		return nil, errors.Errorf("unknown frame type %s", t)
	}
}
