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
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// DiscoveryKey is the topic peers use to find each other on the swarm.
type DiscoveryKey [KeySize]byte

// NamespacePrefix is prepended to discovery keys when used as a rendezvous
// namespace.
const NamespacePrefix = "hyperswarm-e2e/"

// ParseDiscoveryKey parses a discovery key from its string representation.
func ParseDiscoveryKey(s string) (DiscoveryKey, error) {
	var key DiscoveryKey
	data, err := DecodeID(s)
	if err != nil {
		return key, err
	}
	copy(key[:], data)
	return key, nil
}

// GenerateDiscoveryKey returns a new random discovery key.
func GenerateDiscoveryKey() (DiscoveryKey, error) {
	var key DiscoveryKey
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// String returns the normalized z-base-32 form of the key.
func (k DiscoveryKey) String() string {
	return EncodeID(k[:])
}

// Namespace returns the rendezvous namespace for the key.
func (k DiscoveryKey) Namespace() string {
	return NamespacePrefix + k.String()
}

// IsZero reports whether the key is unset.
func (k DiscoveryKey) IsZero() bool {
	return k == DiscoveryKey{}
}

// KeyPair is an ed25519 key pair identified by its 32 byte seed.
type KeyPair struct {
	Seed      []byte
	PublicKey []byte
}

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Seed: priv.Seed(), PublicKey: pub}, nil
}

// HostKey returns the libp2p identity for the key pair.
func (k KeyPair) HostKey() (p2pcrypto.PrivKey, error) {
	return HostKeyFromSeed(k.Seed)
}

// HostKeyFromSeed derives a libp2p ed25519 identity from a 32 byte seed.
func HostKeyFromSeed(seed []byte) (p2pcrypto.PrivKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	priv, err := p2pcrypto.UnmarshalEd25519PrivateKey(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		return nil, fmt.Errorf("unmarshal ed25519 private key: %w", err)
	}
	return priv, nil
}

// PeerIDFromPublicKey returns the libp2p peer ID for a raw ed25519 public key.
func PeerIDFromPublicKey(pub []byte) (peer.ID, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize)
	}
	key, err := p2pcrypto.UnmarshalEd25519PublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("unmarshal ed25519 public key: %w", err)
	}
	id, err := peer.IDFromPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("peer id from public key: %w", err)
	}
	return id, nil
}

// ParsePeerID parses an encoded ed25519 public key into a libp2p peer ID.
func ParsePeerID(s string) (peer.ID, error) {
	pub, err := DecodeID(s)
	if err != nil {
		return "", err
	}
	return PeerIDFromPublicKey(pub)
}
