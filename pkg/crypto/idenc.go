/*
Copyright 2023 Avi Zimmerman <avi.zimmerman@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package crypto contains the key types and encodings shared by the swarm
// peers and the metrics scraper.
package crypto

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the size in bytes of discovery keys, metrics secrets and
// ed25519 public keys.
const KeySize = 32

// z32Alphabet is the z-base-32 alphabet used for human readable keys.
const z32Alphabet = "ybndrfg8ejkmcpqxot1uwisza345h769"

var z32 = base32.NewEncoding(z32Alphabet).WithPadding(base32.NoPadding)

// encoded lengths of a KeySize key.
var (
	z32KeyLen = z32.EncodedLen(KeySize)
	hexKeyLen = hex.EncodedLen(KeySize)
)

// ErrInvalidKey is returned when a string cannot be decoded into a key.
var ErrInvalidKey = fmt.Errorf("invalid key")

// DecodeID decodes a 32 byte identifier from its z-base-32 (52 characters)
// or hex (64 characters) representation.
func DecodeID(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case z32KeyLen:
		out, err := z32.DecodeString(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("%w: decode z-base-32: %w", ErrInvalidKey, err)
		}
		return out, nil
	case hexKeyLen:
		out, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: decode hex: %w", ErrInvalidKey, err)
		}
		return out, nil
	case 0:
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidKey, len(s))
}

// EncodeID returns the normalized z-base-32 representation of the identifier.
func EncodeID(id []byte) string {
	return z32.EncodeToString(id)
}

// NormalizeID decodes s and re-encodes it in its normalized form.
func NormalizeID(s string) (string, error) {
	id, err := DecodeID(s)
	if err != nil {
		return "", err
	}
	return EncodeID(id), nil
}
