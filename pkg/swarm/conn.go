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

package swarm

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

type streamConn struct {
	network.Stream
	topic crypto.DiscoveryKey
}

func (c *streamConn) RemotePeer() peer.ID {
	return c.Stream.Conn().RemotePeer()
}

func (c *streamConn) Topic() crypto.DiscoveryKey {
	return c.topic
}
