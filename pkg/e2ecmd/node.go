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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/config"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/coordinator"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/logging"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/metrics"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/promrpc"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/swarm"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/transfer"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/version"
)

// ShutdownTimeout bounds the shutdown sequence after a signal.
const ShutdownTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Seed a file to every peer joining the discovery key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(serverConfig)
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Download the file from the first peer found on the discovery key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(clientConfig)
	},
}

func runNode(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logging.SetupLogging(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = context.WithLogger(ctx, log)
	log.Info(fmt.Sprintf("Starting hyperswarm-e2e-tests %s", cfg.Role), "version", version.Version, "commit", version.GitCommit)

	key, err := cfg.ParseDiscoveryKey()
	if err != nil {
		return err
	}
	swarmOpts, err := newSwarmOptions(cfg.Swarm)
	if err != nil {
		return err
	}
	sw, err := swarm.New(ctx, swarmOpts)
	if err != nil {
		return fmt.Errorf("start swarm: %w", err)
	}

	opts := coordinator.Options{
		Role:         cfg.Role,
		DiscoveryKey: key,
		Swarm:        sw,
		FileLoc:      cfg.FileLoc,
		Transfer: transfer.Options{
			ProgressEvery: cfg.Transfer.ProgressEvery,
			ChunkSize:     cfg.Transfer.ChunkSize,
		},
		ReadyTimeout: cfg.Metrics.ReadyTimeout,
	}
	if !cfg.Metrics.Disabled {
		client, err := newMetricsClient(ctx, cfg, sw)
		if err != nil {
			_ = sw.Destroy(ctx)
			return err
		}
		opts.Metrics = client
	}
	if cfg.Metrics.ListenAddress != "" {
		srv := metrics.NewServer(ctx, metrics.Options{ListenAddress: cfg.Metrics.ListenAddress})
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Error("Local metrics server exited", "error", err.Error())
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	coord := coordinator.New(ctx, opts)
	runErr := make(chan error, 1)
	go func() { runErr <- coord.Run(ctx) }()

	var result error
	select {
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil {
			log.Error("Replication failed", "error", err.Error())
			result = err
		}
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithLogger(context.Background(), log), ShutdownTimeout)
	defer cancel()
	if err := coord.Shutdown(shutdownCtx); err != nil {
		// A partial shutdown still exits cleanly.
		log.Error("Error while shutting down", "error", err.Error())
	}
	if runErr != nil {
		<-runErr
	}
	return result
}

func newMetricsClient(ctx context.Context, cfg *config.Config, sw *swarm.Swarm) (*promrpc.Client, error) {
	secret, err := cfg.Metrics.ParseSecret()
	if err != nil {
		return nil, err
	}
	scraperID, err := cfg.Metrics.ParseScraperID()
	if err != nil {
		return nil, err
	}
	scraperAddrs, err := config.ToMultiaddrs(cfg.Metrics.ScraperAddrs)
	if err != nil {
		return nil, err
	}
	client, err := promrpc.NewClient(ctx, promrpc.ClientOptions{
		Host:          sw.Host(),
		Routing:       sw.Routing(),
		ScraperID:     scraperID,
		ScraperAddrs:  scraperAddrs,
		Alias:         cfg.Metrics.AliasOrDefault(),
		Service:       cfg.Metrics.ServiceName,
		Secret:        secret,
		RetryInterval: cfg.Metrics.RetryInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("start prom-rpc client: %w", err)
	}
	return client, nil
}

// newSwarmOptions converts the swarm configuration into options for swarm.New.
func newSwarmOptions(cfg config.SwarmOptions) (swarm.Options, error) {
	listenAddrs, err := config.ToMultiaddrs(cfg.ListenAddrs)
	if err != nil {
		return swarm.Options{}, fmt.Errorf("invalid listen addresses: %w", err)
	}
	bootstrapPeers, err := config.ToMultiaddrs(cfg.BootstrapPeers)
	if err != nil {
		return swarm.Options{}, fmt.Errorf("invalid bootstrap peers: %w", err)
	}
	return swarm.Options{
		ListenAddrs:    listenAddrs,
		BootstrapPeers: bootstrapPeers,
		ConnectTimeout: cfg.ConnectTimeout,
		LookupInterval: cfg.LookupInterval,
	}, nil
}
