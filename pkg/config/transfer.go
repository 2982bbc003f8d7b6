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

package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// DefaultProgressEvery is the default number of chunks between progress logs.
const DefaultProgressEvery = 100

// DefaultChunkSize is the default read buffer size for transfers.
const DefaultChunkSize = 64 * 1024

// TransferOptions are options for metered transfers.
type TransferOptions struct {
	// ProgressEvery is the number of chunks between progress logs.
	ProgressEvery int `yaml:"progress-every,omitempty"`
	// ChunkSize is the read buffer size.
	ChunkSize int `yaml:"chunk-size,omitempty"`
}

// NewTransferOptions returns new transfer options with sensible defaults.
func NewTransferOptions() TransferOptions {
	return TransferOptions{
		ProgressEvery: DefaultProgressEvery,
		ChunkSize:     DefaultChunkSize,
	}
}

// LoadEnv overlays values found in the environment onto the options.
func (o *TransferOptions) LoadEnv() {
	o.ProgressEvery = GetEnvIntDefault(ProgressEveryEnvVar, o.ProgressEvery)
}

// BindFlags binds the flags for the transfer options.
func (o *TransferOptions) BindFlags(prefix string, fs *pflag.FlagSet) {
	fs.IntVar(&o.ProgressEvery, prefix+"progress-every", o.ProgressEvery, "Number of chunks between progress logs")
	fs.IntVar(&o.ChunkSize, prefix+"chunk-size", o.ChunkSize, "Read buffer size in bytes")
}

// Validate validates the transfer options.
func (o *TransferOptions) Validate() error {
	if o.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be greater than zero")
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be greater than zero")
	}
	return nil
}
