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

package e2ecmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/config"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a discovery key, a metrics secret and a scraper identity",
	Long: `Generate a discovery key, a metrics secret and a scraper identity.

The output is a list of environment variable assignments. The scraper seed
is only needed by the scraper, every other value is shared by the servers,
the clients and the scraper.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeKeys(cmd.OutOrStdout())
	},
}

func writeKeys(w io.Writer) error {
	key, err := crypto.GenerateDiscoveryKey()
	if err != nil {
		return fmt.Errorf("generate discovery key: %w", err)
	}
	secret, err := crypto.GenerateSecret()
	if err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	scraper, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate scraper key pair: %w", err)
	}
	for _, kv := range [][2]string{
		{config.DiscoveryKeyEnvVar, key.String()},
		{config.PrometheusSecretEnvVar, secret.String()},
		{config.PrometheusScraperKeyEnvVar, crypto.EncodeID(scraper.PublicKey)},
		{config.ScraperSeedEnvVar, crypto.EncodeID(scraper.Seed)},
	} {
		if _, err := fmt.Fprintf(w, "%s=%s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}
