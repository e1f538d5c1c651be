// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

const (
	headerFormLong  = 0x80
	packetTypeMask  = 0x03
	minHeaderLength = 8 // flags + version + dcid len + scid len + packet number
	maxConnIDLength = 20

	// ProtocolVersion is the only version this implementation speaks.
	ProtocolVersion uint32 = 0x00000001
)

var ErrInvalidHeader = errors.New("invalid packet header")

// Header is the long packet header. Only the lowest byte of the packet
// number travels on the wire; PacketNumber holds that truncated value.
type Header struct {
	Type         PacketType
	Version      uint32
	DCID         ConnectionID
	SCID         ConnectionID
	PacketNumber uint8
}

// IsLongHeader reports whether a datagram starts like a QUICVC packet.
func IsLongHeader(b []byte) bool {
	return len(b) > 0 && b[0]&headerFormLong == headerFormLong
}

func SerializeHeader(h Header) ([]byte, error) {
	if len(h.DCID) > maxConnIDLength || len(h.SCID) > maxConnIDLength {
		return nil, errors.Wrapf(ErrInvalidHeader, "connection id too long (dcid %d, scid %d)", len(h.DCID), len(h.SCID))
	}

	b := cryptobyte.NewFixedBuilder(make([]byte, 0, minHeaderLength+len(h.DCID)+len(h.SCID)))
	b.AddUint8(headerFormLong | uint8(h.Type)&packetTypeMask)
	b.AddUint32(h.Version)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(h.DCID)
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(h.SCID)
	})
	b.AddUint8(h.PacketNumber)

	return b.Bytes()
}

// ParseHeader decodes a long header and returns the remaining payload.
// It never panics on garbage; ok is false for anything malformed.
func ParseHeader(data []byte) (h Header, payload []byte, ok bool) {
	if len(data) < minHeaderLength {
		return Header{}, nil, false
	}

	s := cryptobyte.String(data)
	var flags uint8
	var dcid, scid cryptobyte.String
	if !s.ReadUint8(&flags) ||
		!s.ReadUint32(&h.Version) ||
		!s.ReadUint8LengthPrefixed(&dcid) ||
		!s.ReadUint8LengthPrefixed(&scid) ||
		!s.ReadUint8(&h.PacketNumber) {
		return Header{}, nil, false
	}
	if flags&headerFormLong == 0 {
		return Header{}, nil, false
	}
	if len(dcid) > maxConnIDLength || len(scid) > maxConnIDLength {
		return Header{}, nil, false
	}

	h.Type = PacketType(flags & packetTypeMask)
	h.DCID = ConnectionID(append([]byte(nil), dcid...))
	h.SCID = ConnectionID(append([]byte(nil), scid...))

	return h, []byte(s), true
}

// decodePacketNumber expands an 8-bit wire packet number to the full value
// closest to the next expected one (RFC 9000, appendix A.3).
func decodePacketNumber(largest uint64, received bool, truncated uint8) uint64 {
	const (
		win  = uint64(1) << 8
		hwin = win / 2
		mask = win - 1
	)

	expected := uint64(0)
	if received {
		expected = largest + 1
	}
	candidate := (expected &^ mask) | uint64(truncated)

	if candidate+hwin <= expected {
		return candidate + win
	}
	if candidate > expected+hwin && candidate >= win {
		return candidate - win
	}
	return candidate
}
