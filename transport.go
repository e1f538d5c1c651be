// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"context"
	"net"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const maxDatagramSize = 65535

// Transport sends datagrams to a remote address.
type Transport interface {
	Send(ctx context.Context, data []byte, address string, port int) error
}

// DatagramHandler consumes one inbound datagram and reports whether it
// belonged to the protocol. Manager.HandleDatagram satisfies it.
type DatagramHandler func(ctx context.Context, data []byte, address string, port int) bool

type UDPTransport struct {
	conn *net.UDPConn
}

func ListenUDP(listenAddress string) (*UDPTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve %s", listenAddress)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open UDP port %s", listenAddress)
	}

	log.Infof("Listening on %s", conn.LocalAddr())

	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *UDPTransport) Send(ctx context.Context, data []byte, address string, port int) error {
	ip := net.ParseIP(address)
	if ip == nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, address)
		if err != nil || len(addrs) == 0 {
			return errors.Errorf("cannot resolve %s: %v", address, err)
		}
		ip = addrs[0].IP
	}
	// The deadline stays on the socket, so a send without one clears it.
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "cannot set write deadline")
	}

	n, err := t.conn.WriteToUDP(data, &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return errors.Wrapf(err, "could not send datagram to %s", addrKey(address, port))
	}
	if n != len(data) {
		return errors.Errorf("could not send datagram completely (sent %d of %d bytes)", n, len(data))
	}
	return nil
}

// Serve reads datagrams until ctx is cancelled or the socket is closed.
func (t *UDPTransport) Serve(ctx context.Context, handler DatagramHandler) error {
	go func() {
		<-ctx.Done()
		t.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "error reading from socket")
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		if !handler(ctx, pkt, from.IP.String(), from.Port) {
			log.WithField("peer", from.String()).Debugf("Ignoring non-QUICVC datagram (%d bytes)", n)
		}
	}
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
