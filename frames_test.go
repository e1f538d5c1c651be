// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Frames", func() {
	cred := testCredential("urn:uuid:cred-1", deviceIssuer, "person-1")

	It("decodes a mixed payload in order", func() {
		frames := []Frame{
			VCInitFrame{Credential: cred, Challenge: "ab12", Timestamp: 1700000000000},
			StreamFrame{StreamID: 4, Data: []byte("hello")},
			HeartbeatFrame{Timestamp: 1700000000001, Sequence: 9},
			AckFrame{LargestAcknowledged: 3, Packets: []uint64{1, 2, 3}},
			ConnectionCloseFrame{Reason: ReasonUserRequested},
			DiscoveryFrame{Payload: []byte{0x01, 0x02}},
		}

		b, err := EncodeFrames(frames...)
		Expect(err).NotTo(HaveOccurred())
		Expect(ParseFrames(b)).To(Equal(frames))
	})

	It("uses a type byte and a two byte length per frame", func() {
		b, err := EncodeFrames(StreamFrame{StreamID: 2, Data: []byte{0xff}})
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal([]byte{byte(FRAME_STREAM), 0x00, 0x02, 0x02, 0xff}))
	})

	It("encodes handshake frames as JSON", func() {
		b, err := EncodeFrames(VCResponseFrame{Credential: cred, Challenge: "c1", AckChallenge: "c0", Timestamp: 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(b[0]).To(Equal(byte(FRAME_VC_RESPONSE)))

		var decoded map[string]interface{}
		Expect(json.Unmarshal(b[3:], &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("challenge", "c1"))
		Expect(decoded).To(HaveKeyWithValue("ackChallenge", "c0"))
		Expect(decoded).To(HaveKey("credential"))
	})

	It("stops at a truncated trailing frame", func() {
		b, err := EncodeFrames(
			HeartbeatFrame{Timestamp: 1, Sequence: 1},
			StreamFrame{StreamID: 1, Data: []byte("cut off")},
		)
		Expect(err).NotTo(HaveOccurred())

		frames := ParseFrames(b[:len(b)-3])
		Expect(frames).To(Equal([]Frame{HeartbeatFrame{Timestamp: 1, Sequence: 1}}))
	})

	It("skips unknown and undecodable frames", func() {
		b, err := EncodeFrames(StreamFrame{StreamID: 1, Data: []byte("x")})
		Expect(err).NotTo(HaveOccurred())

		data := []byte{0x7f, 0x00, 0x01, 0xaa}
		data = append(data, byte(FRAME_HEARTBEAT), 0x00, 0x01, '{')
		data = append(data, byte(FRAME_STREAM), 0x00, 0x00)
		data = append(data, b...)

		Expect(ParseFrames(data)).To(Equal([]Frame{StreamFrame{StreamID: 1, Data: []byte("x")}}))
	})

	It("returns no frames for an empty payload", func() {
		Expect(ParseFrames(nil)).To(BeEmpty())
	})

	It("rejects frames that do not fit the length field", func() {
		_, err := EncodeFrames(DiscoveryFrame{Payload: make([]byte, maxFramePayload+1)})
		Expect(err).To(HaveOccurred())
	})
})
