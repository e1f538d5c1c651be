// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrDecryptFailed = errors.New("packet decryption failed")

// packetNonce xors the full packet number into the last eight bytes of the
// first 12 IV bytes.
func packetNonce(iv []byte, pn uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	copy(nonce, iv)
	var pnBytes [8]byte
	binary.BigEndian.PutUint64(pnBytes[:], pn)
	for i := 0; i < 8; i++ {
		nonce[chacha20poly1305.NonceSize-8+i] ^= pnBytes[i]
	}
	return nonce
}

// sealPacket protects a PROTECTED payload with the local send direction.
// The serialized header is authenticated as associated data.
func sealPacket(keys Keys, header []byte, pn uint64, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(keys.EncryptKey)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create packet cipher")
	}
	return aead.Seal(nil, packetNonce(keys.SendIV, pn), plaintext, header), nil
}

func openPacket(keys Keys, header []byte, pn uint64, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(keys.DecryptKey)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create packet cipher")
	}
	plaintext, err := aead.Open(nil, packetNonce(keys.ReceiveIV, pn), ciphertext, header)
	if err != nil {
		return nil, errors.Wrap(ErrDecryptFailed, err.Error())
	}
	return plaintext, nil
}
