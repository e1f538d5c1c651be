// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type Config struct {
	HandshakeTimeout   time.Duration `toml:"handshake_timeout"`
	HeartbeatInterval  time.Duration `toml:"heartbeat_interval"`
	IdleTimeout        time.Duration `toml:"idle_timeout"`
	Version            uint32        `toml:"version"`
	ConnectionIDLength int           `toml:"connection_id_length"`
	MaxPendingAcks     int           `toml:"max_pending_acks"`

	// DeviceRPCStreamID must differ from ApplicationStreamID (0). A literal
	// Config{} gets the default stream 3.
	DeviceRPCStreamID uint8 `toml:"device_rpc_stream_id"`

	// OwnerID is this node's person id. Handshakes with devices whose
	// credential was issued by it are reported as provisioned.
	OwnerID string `toml:"owner_id"`

	// PlaintextProtected disables AEAD on PROTECTED packets for peers that
	// only implement pass-through protection. Never use it in production.
	PlaintextProtected bool `toml:"plaintext_protected"`
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:   5 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		IdleTimeout:        120 * time.Second,
		Version:            ProtocolVersion,
		ConnectionIDLength: 16,
		DeviceRPCStreamID:  3,
		MaxPendingAcks:     32,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config load failed (%s)", path)
	}

	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config parse failed (%s)", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config invalid (%s)", path)
	}
	return cfg, nil
}

// withDefaults fills zero fields so a literal Config{} is usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.ConnectionIDLength == 0 {
		c.ConnectionIDLength = def.ConnectionIDLength
	}
	if c.DeviceRPCStreamID == 0 {
		c.DeviceRPCStreamID = def.DeviceRPCStreamID
	}
	if c.MaxPendingAcks == 0 {
		c.MaxPendingAcks = def.MaxPendingAcks
	}
	return c
}

func (c Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake_timeout must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle_timeout must be positive")
	}
	if c.HeartbeatInterval >= c.IdleTimeout {
		return errors.Errorf("heartbeat_interval (%v) must be shorter than idle_timeout (%v)", c.HeartbeatInterval, c.IdleTimeout)
	}
	if c.ConnectionIDLength < 1 || c.ConnectionIDLength > maxConnIDLength {
		return errors.Errorf("connection_id_length must be between 1 and %d", maxConnIDLength)
	}
	if c.DeviceRPCStreamID == ApplicationStreamID {
		return errors.Errorf("device_rpc_stream_id must not be the application stream %d", ApplicationStreamID)
	}
	if c.MaxPendingAcks < 0 {
		return errors.New("max_pending_acks must not be negative")
	}
	return nil
}
