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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/config"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/crypto"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/logging"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/metrics"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/promrpc"
	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/swarm"
)

var scraperCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Accept metrics registrations and serve the scraped metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScraper(scraperConfig)
	},
}

func runScraper(cfg *config.ScraperConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logging.SetupLogging(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = context.WithLogger(ctx, log)

	seed, err := cfg.ParseSeed()
	if err != nil {
		return err
	}
	key, err := crypto.HostKeyFromSeed(seed)
	if err != nil {
		return err
	}
	secret, err := crypto.ParseSecret(cfg.Secret)
	if err != nil {
		return err
	}
	swarmOpts, err := newSwarmOptions(cfg.Swarm)
	if err != nil {
		return err
	}
	swarmOpts.Key = key
	sw, err := swarm.New(ctx, swarmOpts)
	if err != nil {
		return err
	}
	scraper, err := promrpc.NewScraper(ctx, promrpc.ScraperOptions{
		Host:           sw.Host(),
		Secret:         secret,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		_ = sw.Destroy(ctx)
		return err
	}
	pub, err := key.GetPublic().Raw()
	if err != nil {
		_ = sw.Destroy(ctx)
		return err
	}
	log.Info("Scraper started",
		"public-key", crypto.EncodeID(pub),
		"peer-id", sw.ID().String(),
		"addrs", sw.Host().Addrs(),
	)

	srv := metrics.NewServer(ctx, metrics.Options{
		ListenAddress: cfg.HTTPAddress,
		Handler:       scraper.Handler(),
	})
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()

	var result error
	select {
	case <-ctx.Done():
	case result = <-srvErr:
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err = multierr.Combine(
		srv.Shutdown(shutdownCtx),
		scraper.Close(),
		sw.Destroy(shutdownCtx),
	)
	if err != nil {
		log.Error("Error while shutting down", "error", err.Error())
	}
	log.Info("Successfully shut down")
	return result
}
