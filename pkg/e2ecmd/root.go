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

// Package e2ecmd contains the hyperswarm-e2e CLI.
package e2ecmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/config"
)

var (
	serverConfig  = config.NewDefaultConfig(config.RoleServer)
	clientConfig  = config.NewDefaultConfig(config.RoleClient)
	scraperConfig = config.NewScraperConfig()
)

func init() {
	// Configuration precedence is defaults, file, environment, then flags.
	if path := os.Getenv(config.ConfigFileEnvVar); path != "" {
		for _, cfg := range []*config.Config{serverConfig, clientConfig} {
			role := cfg.Role
			if err := cfg.LoadFile(path); err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
				os.Exit(1)
			}
			cfg.Role = role
		}
	}
	serverConfig.LoadEnv().BindFlags("", serverCmd.Flags())
	clientConfig.LoadEnv().BindFlags("", clientCmd.Flags())
	scraperConfig.LoadEnv().BindFlags("", scraperCmd.Flags())
	rootCmd.AddCommand(serverCmd, clientCmd, scraperCmd, keygenCmd, mkfileCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:           "hyperswarm-e2e",
	Short:         "hyperswarm-e2e runs the end-to-end replication test processes",
	SilenceErrors: true,
	SilenceUsage:  true,
}
