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

package coordinator

// State is the lifecycle state of a coordinator.
type State int32

const (
	// StateInit is the state before Run is called.
	StateInit State = iota
	// StateAwaitingMetricsReady waits for the metrics client to register
	// and be scraped.
	StateAwaitingMetricsReady
	// StateJoining joins the swarm topic.
	StateJoining
	// StateActive handles connections.
	StateActive
	// StateTerminating runs the shutdown sequence.
	StateTerminating
	// StateExited is the final state.
	StateExited
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingMetricsReady:
		return "awaiting-metrics-ready"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateExited:
		return "exited"
	}
	return "unknown"
}

// admission tracks whether a client already ran its session.
type admission int

const (
	awaitingFirstConnection admission = iota
	sessionActive
)
