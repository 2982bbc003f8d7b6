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

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
)

// Shutdown closes the metrics client and then destroys the swarm. Every
// step runs even when the one before it failed. Live sessions are then
// drained, bounded by ctx. Only the first call has any effect, later calls
// return its result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown(ctx)
	})
	return c.shutdownErr
}

func (c *Coordinator) shutdown(ctx context.Context) error {
	log := c.log
	log.Info("Shutting down")
	c.state.Store(int32(StateTerminating))
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.closec)

	var errs error
	if m := c.opts.Metrics; m != nil {
		if err := recoverStep(func() error { return m.Close(ctx) }); err != nil {
			log.Error("Failed to shut down prom-rpc client", "error", err.Error())
			errs = multierr.Append(errs, fmt.Errorf("close metrics: %w", err))
		} else {
			log.Info("Prom-rpc client shut down")
		}
	}
	if err := recoverStep(func() error { return c.opts.Swarm.Destroy(ctx) }); err != nil {
		log.Error("Failed to shut down swarm", "error", err.Error())
		errs = multierr.Append(errs, fmt.Errorf("destroy swarm: %w", err))
	} else {
		log.Info("Swarm shut down")
	}

	drained := make(chan struct{})
	go func() {
		c.sessions.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Warn("Sessions did not finish in time, destroying them")
		c.sessionCancel()
		<-drained
	}
	c.sessionCancel()

	c.state.Store(int32(StateExited))
	log.Info("Successfully shut down")
	return errs
}

// recoverStep runs a shutdown step, turning a panic into an error.
func recoverStep(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
