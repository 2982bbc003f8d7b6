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

package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

func init() {
	// assert we have a crypto/rand source
	b := make([]byte, 1)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand is unavailable")
	}
}

// ErrInvalidSignature is returned when a signature is invalid.
var ErrInvalidSignature = fmt.Errorf("invalid signature")

// Secret is a shared secret used to authenticate registrations with a
// metrics scraper.
type Secret []byte

// ParseSecret parses a secret from its string representation.
func ParseSecret(s string) (Secret, error) {
	data, err := DecodeID(s)
	if err != nil {
		return nil, err
	}
	return Secret(data), nil
}

// GenerateSecret generates a new random secret.
func GenerateSecret() (Secret, error) {
	b := make(Secret, KeySize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustGenerateSecret generates a secret and panics on error.
func MustGenerateSecret() Secret {
	s, err := GenerateSecret()
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the normalized encoding of the secret.
func (s Secret) String() string {
	return EncodeID(s)
}

// Sign creates an HMAC-SHA256 signature of the given data using this secret.
func (s Secret) Sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify verifies the given signature against the given data.
func (s Secret) Verify(data, signature []byte) error {
	if len(s) == 0 || !hmac.Equal(s.Sign(data), signature) {
		return ErrInvalidSignature
	}
	return nil
}
