// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	It("has the protocol defaults", func() {
		cfg := DefaultConfig()
		Expect(cfg.HandshakeTimeout).To(Equal(5 * time.Second))
		Expect(cfg.HeartbeatInterval).To(Equal(30 * time.Second))
		Expect(cfg.IdleTimeout).To(Equal(120 * time.Second))
		Expect(cfg.Version).To(Equal(ProtocolVersion))
		Expect(cfg.ConnectionIDLength).To(Equal(16))
		Expect(cfg.DeviceRPCStreamID).To(Equal(uint8(3)))
		Expect(cfg.Validate()).To(Succeed())
	})

	It("fills zero fields from the defaults", func() {
		Expect(Config{}.withDefaults()).To(Equal(DefaultConfig()))

		cfg := Config{IdleTimeout: time.Minute, OwnerID: ownerIssuer}.withDefaults()
		Expect(cfg.IdleTimeout).To(Equal(time.Minute))
		Expect(cfg.HeartbeatInterval).To(Equal(30 * time.Second))
		Expect(cfg.OwnerID).To(Equal(ownerIssuer))
	})

	DescribeTable("rejects inconsistent settings",
		func(mutate func(*Config)) {
			cfg := DefaultConfig()
			mutate(&cfg)
			Expect(cfg.Validate()).NotTo(Succeed())
		},
		Entry("heartbeat not shorter than idle", func(c *Config) { c.HeartbeatInterval = c.IdleTimeout }),
		Entry("negative handshake timeout", func(c *Config) { c.HandshakeTimeout = -time.Second }),
		Entry("connection id too long", func(c *Config) { c.ConnectionIDLength = 21 }),
		Entry("connection id empty", func(c *Config) { c.ConnectionIDLength = 0 }),
		Entry("negative ack cap", func(c *Config) { c.MaxPendingAcks = -1 }),
		Entry("device RPC on the application stream", func(c *Config) { c.DeviceRPCStreamID = ApplicationStreamID }),
	)

	Context("LoadConfig", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("overlays a TOML file on the defaults", func() {
			path := filepath.Join(dir, "quicvc.toml")
			Expect(os.WriteFile(path, []byte(`
heartbeat_interval = "10s"
idle_timeout = "45s"
connection_id_length = 8
owner_id = "did:example:owner"
`), 0o600)).To(Succeed())

			cfg, err := LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.HeartbeatInterval).To(Equal(10 * time.Second))
			Expect(cfg.IdleTimeout).To(Equal(45 * time.Second))
			Expect(cfg.ConnectionIDLength).To(Equal(8))
			Expect(cfg.OwnerID).To(Equal(ownerIssuer))
			Expect(cfg.HandshakeTimeout).To(Equal(5 * time.Second))
		})

		It("validates the result", func() {
			path := filepath.Join(dir, "quicvc.toml")
			Expect(os.WriteFile(path, []byte(`heartbeat_interval = "5m"`), 0o600)).To(Succeed())

			_, err := LoadConfig(path)
			Expect(err).To(MatchError(ContainSubstring("must be shorter than")))
		})

		It("rejects the application stream as device RPC stream", func() {
			path := filepath.Join(dir, "quicvc.toml")
			Expect(os.WriteFile(path, []byte(`device_rpc_stream_id = 0`), 0o600)).To(Succeed())

			_, err := LoadConfig(path)
			Expect(err).To(MatchError(ContainSubstring("device_rpc_stream_id")))
		})

		It("reports parse errors", func() {
			path := filepath.Join(dir, "quicvc.toml")
			Expect(os.WriteFile(path, []byte(`idle_timeout = `), 0o600)).To(Succeed())

			_, err := LoadConfig(path)
			Expect(err).To(MatchError(ContainSubstring("config parse failed")))
		})

		It("reports a missing file", func() {
			_, err := LoadConfig(filepath.Join(dir, "missing.toml"))
			Expect(err).To(MatchError(ContainSubstring("config load failed")))
		})
	})
})
