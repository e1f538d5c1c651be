// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Key schedule", func() {
	It("derives initial keys deterministically", func() {
		a := DeriveInitialKeys("urn:uuid:client", "urn:uuid:server")
		b := DeriveInitialKeys("urn:uuid:client", "urn:uuid:server")
		Expect(a.Equal(b)).To(BeTrue())

		Expect(a.EncryptKey).To(HaveLen(keyLength))
		Expect(a.EncryptKey).To(Equal(a.DecryptKey))
		Expect(a.SendIV).To(Equal(a.ReceiveIV))
		Expect(a.SendHMAC).To(Equal(a.ReceiveHMAC))
		// a single digest fills all three fields
		Expect(a.EncryptKey).To(Equal(a.SendIV))

		c := DeriveInitialKeys("urn:uuid:server", "urn:uuid:client")
		Expect(a.Equal(c)).To(BeFalse())
	})

	It("derives six distinct handshake fields", func() {
		k := DeriveHandshakeKeys("00ff", "zClientProof", "zServerProof")
		fields := [][]byte{k.EncryptKey, k.DecryptKey, k.SendIV, k.ReceiveIV, k.SendHMAC, k.ReceiveHMAC}
		for i := range fields {
			Expect(fields[i]).To(HaveLen(keyLength))
			for j := i + 1; j < len(fields); j++ {
				Expect(fields[i]).NotTo(Equal(fields[j]))
			}
		}

		Expect(k.Equal(DeriveHandshakeKeys("00ff", "zClientProof", "zServerProof"))).To(BeTrue())
		Expect(k.Equal(DeriveHandshakeKeys("00fe", "zClientProof", "zServerProof"))).To(BeFalse())
	})

	It("separates phases by salt", func() {
		hs := splitKeys(expand(handshakeSalt, "a", "b"))
		app := splitKeys(expand(applicationSalt, "a", "b"))
		Expect(hs.Equal(app)).To(BeFalse())
		Expect(app.Equal(DeriveApplicationKeys("a", "b"))).To(BeTrue())
	})

	It("gives both roles matching directions", func() {
		k := DeriveApplicationKeys("04client", "04server")
		client := k.ForRole(CLIENT)
		server := k.ForRole(SERVER)

		Expect(client.Equal(k)).To(BeTrue())
		Expect(client.EncryptKey).To(Equal(server.DecryptKey))
		Expect(client.DecryptKey).To(Equal(server.EncryptKey))
		Expect(client.SendIV).To(Equal(server.ReceiveIV))
		Expect(client.ReceiveIV).To(Equal(server.SendIV))
		Expect(client.SendHMAC).To(Equal(server.ReceiveHMAC))
		Expect(server.ForRole(SERVER).Equal(k)).To(BeTrue())
	})
})

var _ = Describe("Packet protection", func() {
	var client, server Keys
	header := []byte{0x82, 0, 0, 0, 1, 1, 0xaa, 1, 0xbb, 3}

	BeforeEach(func() {
		k := DeriveApplicationKeys("04client", "04server")
		client = k.ForRole(CLIENT)
		server = k.ForRole(SERVER)
	})

	It("opens what the peer sealed", func() {
		sealed, err := sealPacket(client, header, 3, []byte("payload"))
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.Contains(sealed, []byte("payload"))).To(BeFalse())

		opened, err := openPacket(server, header, 3, sealed)
		Expect(err).NotTo(HaveOccurred())
		Expect(opened).To(Equal([]byte("payload")))
	})

	It("authenticates the header", func() {
		sealed, err := sealPacket(client, header, 3, []byte("payload"))
		Expect(err).NotTo(HaveOccurred())

		tampered := append([]byte(nil), header...)
		tampered[len(tampered)-1] = 4
		_, err = openPacket(server, tampered, 3, sealed)
		Expect(err).To(MatchError(ErrDecryptFailed))
	})

	It("binds the full packet number into the nonce", func() {
		sealed, err := sealPacket(client, header, 259, []byte("payload"))
		Expect(err).NotTo(HaveOccurred())

		_, err = openPacket(server, header, 3, sealed)
		Expect(err).To(MatchError(ErrDecryptFailed))
	})

	It("cannot be opened with the sender's own keys", func() {
		sealed, err := sealPacket(client, header, 1, []byte("payload"))
		Expect(err).NotTo(HaveOccurred())

		_, err = openPacket(client, header, 1, sealed)
		Expect(err).To(MatchError(ErrDecryptFailed))
	})
})
