// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"net"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// connectionTable indexes connections by hex local connection id, with a
// secondary index by remote address. It is only touched with the manager
// lock held.
type connectionTable struct {
	byID   map[string]*connection
	byAddr map[string]string
}

func newConnectionTable() connectionTable {
	return connectionTable{
		byID:   make(map[string]*connection),
		byAddr: make(map[string]string),
	}
}

func addrKey(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}

func (t *connectionTable) Add(c *connection) error {
	key := c.localID.String()
	if _, exists := t.byID[key]; exists {
		return errors.Errorf("connection %s already exists", key)
	}

	t.byID[key] = c
	t.byAddr[addrKey(c.address, c.port)] = key
	return nil
}

func (t *connectionTable) Get(id ConnectionID) (*connection, bool) {
	c, exists := t.byID[id.String()]
	return c, exists
}

func (t *connectionTable) GetByAddr(address string, port int) (*connection, bool) {
	key, exists := t.byAddr[addrKey(address, port)]
	if !exists {
		return nil, false
	}
	c, exists := t.byID[key]
	return c, exists
}

// GetByDevice prefers an ESTABLISHED connection when several records
// resolve to the same device.
func (t *connectionTable) GetByDevice(deviceID string) (*connection, bool) {
	var found *connection
	for _, c := range t.byID {
		if c.deviceID != deviceID {
			continue
		}
		if found == nil || (c.state == ESTABLISHED && found.state != ESTABLISHED) {
			found = c
		}
	}
	return found, found != nil
}

func (t *connectionTable) Remove(c *connection) {
	key := c.localID.String()
	if cur, exists := t.byID[key]; !exists || cur != c {
		return
	}
	delete(t.byID, key)

	ak := addrKey(c.address, c.port)
	if t.byAddr[ak] == key {
		delete(t.byAddr, ak)
	}
}

func (t *connectionTable) Len() int {
	return len(t.byID)
}

// All returns the connections ordered by creation time.
func (t *connectionTable) All() []*connection {
	conns := make([]*connection, 0, len(t.byID))
	for _, c := range t.byID {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].createdAt.Equal(conns[j].createdAt) {
			return conns[i].localID.String() < conns[j].localID.String()
		}
		return conns[i].createdAt.Before(conns[j].createdAt)
	})
	return conns
}
