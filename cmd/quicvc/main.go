// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ironcore-dev/quicvc"
	log "github.com/sirupsen/logrus"
)

type CommonFlags struct {
	Listen        string   `help:"UDP listen address" default:"[::]:49497"`
	Config        string   `help:"TOML config file"`
	Credential    string   `help:"Local credential (JSON file)" required:""`
	TrustedIssuer []string `help:"Trusted credential issuer. You may define multiple issuers."`
	StatusListen  string   `help:"HTTP status listen address. e.g. [::]:4712"`
	Verbose       bool     `help:"Enable debug logging" short:"v"`
}

var CLI struct {
	Listen struct {
		CommonFlags `embed:""`
	} `cmd:"" help:"Accept QUICVC connections"`

	Connect struct {
		CommonFlags `embed:""`

		Device  string `help:"Device id of the peer" required:""`
		Address string `help:"Peer address" required:""`
		Port    int    `help:"Peer UDP port" default:"49497"`
	} `cmd:"" help:"Connect to a QUICVC device"`
}

type logObserver struct{}

func (logObserver) HandshakeComplete(deviceID string) {
	log.WithField("device", deviceID).Infof("handshake-complete")
}

func (logObserver) ConnectionEstablished(deviceID string, remote quicvc.VerifiedInfo) {
	log.WithField("device", deviceID).Infof("connection-established (issuer %s)", remote.IssuerID)
}

func (logObserver) ConnectionClosed(deviceID string, reason string) {
	log.WithField("device", deviceID).Infof("connection-closed: %s", reason)
}

func (logObserver) DeviceProvisioned(deviceID string, ownerID string) {
	log.WithField("device", deviceID).Infof("device-provisioned (owner %s)", ownerID)
}

func (logObserver) StreamResponse(deviceID string, payload json.RawMessage) {
	log.WithField("device", deviceID).Infof("stream-response: %s", string(payload))
}

func setup(flags CommonFlags) (*quicvc.Manager, *quicvc.UDPTransport, quicvc.Credential) {
	if flags.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	config := quicvc.DefaultConfig()
	if flags.Config != "" {
		var err error
		config, err = quicvc.LoadConfig(flags.Config)
		if err != nil {
			log.Fatalf("Cannot load config: %v", err)
		}
	}

	cred, err := quicvc.LoadCredential(flags.Credential)
	if err != nil {
		log.Fatalf("Cannot load credential: %v", err)
	}

	transport, err := quicvc.ListenUDP(flags.Listen)
	if err != nil {
		log.Fatalf("Cannot listen: %v", err)
	}

	m := quicvc.NewManager(config, transport, quicvc.NewIssuerVerifier(flags.TrustedIssuer...), cred, logObserver{})

	if flags.StatusListen != "" {
		go func() {
			if err := quicvc.ServeStatus(m, flags.StatusListen); err != nil {
				log.Errorf("Status server stopped: %v", err)
			}
		}()
	}

	return m, transport, cred
}

func main() {
	log.Infof("QUICVC")

	ctx := kong.Parse(&CLI)

	var m *quicvc.Manager
	var transport *quicvc.UDPTransport

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch ctx.Command() {
	case "listen":
		m, transport, _ = setup(CLI.Listen.CommonFlags)
		go serve(runCtx, m, transport)

	case "connect":
		var cred quicvc.Credential
		m, transport, cred = setup(CLI.Connect.CommonFlags)
		go serve(runCtx, m, transport)

		sendCtx, sendCancel := context.WithTimeout(runCtx, 5*time.Second)
		err := m.Initiate(sendCtx, CLI.Connect.Device, CLI.Connect.Address, CLI.Connect.Port, cred)
		sendCancel()
		if err != nil {
			log.Fatalf("Cannot connect to %s: %v", CLI.Connect.Device, err)
		}

	default:
		log.Errorf("Error: %v", ctx.Command())
		return
	}

	// Wait for SIGINTs
	cint := make(chan os.Signal, 1)
	signal.Notify(cint, os.Interrupt)
	<-cint

	m.Shutdown()
	cancel()
}

func serve(ctx context.Context, m *quicvc.Manager, transport *quicvc.UDPTransport) {
	if err := transport.Serve(ctx, m.HandleDatagram); err != nil {
		log.Errorf("Transport stopped: %v", err)
	}
}
