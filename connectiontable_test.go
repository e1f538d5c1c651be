// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("connectionTable", func() {
	var (
		table connectionTable
		a, b  *connection
	)

	BeforeEach(func() {
		table = newConnectionTable()
		cred := testCredential("urn:uuid:local", deviceIssuer, "person-1")

		a = newConnection(CLIENT, ConnectionID{0x01}, ConnectionID{0x11}, "10.0.0.1", 4433, cred)
		a.deviceID = "device-1"
		b = newConnection(SERVER, ConnectionID{0x02}, ConnectionID{0x12}, "10.0.0.2", 4433, cred)
		b.deviceID = "device-2"
		b.createdAt = a.createdAt.Add(time.Second)

		Expect(table.Add(a)).To(Succeed())
		Expect(table.Add(b)).To(Succeed())
	})

	It("looks connections up by id and by address", func() {
		c, exists := table.Get(ConnectionID{0x01})
		Expect(exists).To(BeTrue())
		Expect(c).To(BeIdenticalTo(a))

		c, exists = table.GetByAddr("10.0.0.2", 4433)
		Expect(exists).To(BeTrue())
		Expect(c).To(BeIdenticalTo(b))

		_, exists = table.GetByAddr("10.0.0.2", 4434)
		Expect(exists).To(BeFalse())
	})

	It("rejects a duplicate local id", func() {
		dup := newConnection(CLIENT, ConnectionID{0x01}, ConnectionID{0x99}, "10.0.0.9", 1, a.localCredential)
		Expect(table.Add(dup)).NotTo(Succeed())
		Expect(table.Len()).To(Equal(2))
	})

	It("prefers the established record for a device", func() {
		half := newConnection(CLIENT, ConnectionID{0x03}, ConnectionID{0x13}, "10.0.0.3", 4433, a.localCredential)
		half.deviceID = "device-1"
		Expect(table.Add(half)).To(Succeed())

		a.state = ESTABLISHED
		c, exists := table.GetByDevice("device-1")
		Expect(exists).To(BeTrue())
		Expect(c).To(BeIdenticalTo(a))

		_, exists = table.GetByDevice("device-9")
		Expect(exists).To(BeFalse())
	})

	It("removes only the record it was given", func() {
		stale := newConnection(CLIENT, ConnectionID{0x01}, ConnectionID{0x11}, "10.0.0.1", 4433, a.localCredential)
		table.Remove(stale)
		Expect(table.Len()).To(Equal(2))

		table.Remove(a)
		Expect(table.Len()).To(Equal(1))
		_, exists := table.Get(ConnectionID{0x01})
		Expect(exists).To(BeFalse())
		_, exists = table.GetByAddr("10.0.0.1", 4433)
		Expect(exists).To(BeFalse())

		table.Remove(a)
		Expect(table.Len()).To(Equal(1))
	})

	It("keeps the newer address mapping when an older record goes", func() {
		newer := newConnection(CLIENT, ConnectionID{0x04}, ConnectionID{0x14}, "10.0.0.1", 4433, a.localCredential)
		Expect(table.Add(newer)).To(Succeed())

		table.Remove(a)
		c, exists := table.GetByAddr("10.0.0.1", 4433)
		Expect(exists).To(BeTrue())
		Expect(c).To(BeIdenticalTo(newer))
	})

	It("lists connections oldest first", func() {
		Expect(table.All()).To(Equal([]*connection{a, b}))
	})
})

var _ = Describe("connection", func() {
	var c *connection

	BeforeEach(func() {
		c = newConnection(SERVER, ConnectionID{0x01}, ConnectionID{0x02}, "10.0.0.1", 4433, Credential{})
	})

	It("hands out packet numbers in order", func() {
		Expect(c.nextPacketNumber()).To(Equal(uint64(0)))
		Expect(c.nextPacketNumber()).To(Equal(uint64(1)))
		Expect(c.nextPacketNumber()).To(Equal(uint64(2)))
	})

	It("tracks the highest received packet and pending acks", func() {
		Expect(c.recordReceived(0, 32)).To(BeTrue())
		Expect(c.recordReceived(2, 32)).To(BeTrue())
		Expect(c.recordReceived(1, 32)).To(BeTrue())
		Expect(c.recordReceived(2, 32)).To(BeFalse())

		Expect(c.highestReceived).To(Equal(uint64(2)))
		Expect(c.pendingAcks).To(Equal([]uint64{0, 2, 1}))
	})

	It("caps the pending acks", func() {
		for pn := uint64(0); pn < 10; pn++ {
			c.recordReceived(pn, 4)
		}
		Expect(c.pendingAcks).To(Equal([]uint64{6, 7, 8, 9}))
	})

	It("names devices without a subject id after the remote connection id", func() {
		Expect(fallbackDeviceID(ConnectionID{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33, 0x44})).
			To(Equal("device-deadbeef00112233"))
		Expect(fallbackDeviceID(ConnectionID{0x01})).To(Equal("device-01"))
	})

	It("generates connection ids of the configured length", func() {
		for _, length := range []int{1, 8, 16, 20} {
			id, err := newConnectionID(length)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(HaveLen(length))
		}

		a, _ := newConnectionID(16)
		b, _ := newConnectionID(16)
		Expect(a).NotTo(Equal(b))
	})

	It("generates 64 hex character challenges", func() {
		ch, err := newChallenge()
		Expect(err).NotTo(HaveOccurred())
		Expect(ch).To(MatchRegexp("^[0-9a-f]{64}$"))
	})
})
