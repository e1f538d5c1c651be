// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"bytes"
	"crypto/sha256"
)

const (
	initialSalt     = "quicvc-initial-salt-v1"
	handshakeSalt   = "quicvc-handshake-salt-v1"
	applicationSalt = "quicvc-application-salt-v1"

	keyLength = 32
)

// Keys is one phase's key bundle. Derivations return it oriented from the
// client's point of view; use ForRole to get the local view.
type Keys struct {
	EncryptKey  []byte
	DecryptKey  []byte
	SendIV      []byte
	ReceiveIV   []byte
	SendHMAC    []byte
	ReceiveHMAC []byte
}

// ForRole returns the bundle as seen by the given role. The server sends
// with what the client receives with and vice versa.
func (k Keys) ForRole(role Role) Keys {
	if role == CLIENT {
		return k
	}
	return Keys{
		EncryptKey:  k.DecryptKey,
		DecryptKey:  k.EncryptKey,
		SendIV:      k.ReceiveIV,
		ReceiveIV:   k.SendIV,
		SendHMAC:    k.ReceiveHMAC,
		ReceiveHMAC: k.SendHMAC,
	}
}

func (k Keys) Equal(o Keys) bool {
	return bytes.Equal(k.EncryptKey, o.EncryptKey) &&
		bytes.Equal(k.DecryptKey, o.DecryptKey) &&
		bytes.Equal(k.SendIV, o.SendIV) &&
		bytes.Equal(k.ReceiveIV, o.ReceiveIV) &&
		bytes.Equal(k.SendHMAC, o.SendHMAC) &&
		bytes.Equal(k.ReceiveHMAC, o.ReceiveHMAC)
}

// DeriveInitialKeys hashes the two credential ids once and repeats the
// digest to fill key, IV and HMAC. Both directions share each value.
func DeriveInitialKeys(clientCredentialID, serverCredentialID string) Keys {
	h := sha256.New()
	h.Write([]byte(initialSalt))
	h.Write([]byte(clientCredentialID))
	h.Write([]byte(serverCredentialID))
	digest := h.Sum(nil)

	material := bytes.Repeat(digest, 3)
	key := material[0:32]
	iv := material[32:64]
	mac := material[64:96]

	return Keys{
		EncryptKey:  key,
		DecryptKey:  key,
		SendIV:      iv,
		ReceiveIV:   iv,
		SendHMAC:    mac,
		ReceiveHMAC: mac,
	}
}

// DeriveHandshakeKeys binds the initiator's challenge to both proofs.
func DeriveHandshakeKeys(challenge, clientProof, serverProof string) Keys {
	return splitKeys(expand(handshakeSalt, challenge, clientProof, serverProof))
}

// DeriveApplicationKeys is keyed on both peers' public keys.
func DeriveApplicationKeys(clientPublicKey, serverPublicKey string) Keys {
	return splitKeys(expand(applicationSalt, clientPublicKey, serverPublicKey))
}

// expand runs two chained SHA-256 rounds: the first compresses salt and
// info into a pseudo-random key, the second chains blocks off that key
// until six 32 byte fields are filled.
func expand(salt string, info ...string) []byte {
	h := sha256.New()
	h.Write([]byte(salt))
	for _, part := range info {
		h.Write([]byte(part))
	}
	prk := h.Sum(nil)

	out := make([]byte, 0, 6*keyLength)
	prev := []byte{}
	for i := byte(1); len(out) < 6*keyLength; i++ {
		h := sha256.New()
		h.Write(prk)
		h.Write(prev)
		h.Write([]byte{i})
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out
}

func splitKeys(m []byte) Keys {
	return Keys{
		EncryptKey:  m[0:32],
		DecryptKey:  m[32:64],
		SendIV:      m[64:96],
		ReceiveIV:   m[96:128],
		SendHMAC:    m[128:160],
		ReceiveHMAC: m[160:192],
	}
}
