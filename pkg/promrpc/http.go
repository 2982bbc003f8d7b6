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

package promrpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/common/expfmt"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/context"
)

// MetricsPathPrefix is the HTTP path prefix scraped targets are served
// under. The alias follows the prefix.
const MetricsPathPrefix = "/metrics/"

// TargetsPath is the HTTP path listing the registered targets.
const TargetsPath = "/targets"

// Handler returns an HTTP handler exposing the metrics of registered
// targets to Prometheus. Every request scrapes the target.
func (s *Scraper) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(MetricsPathPrefix, func(w http.ResponseWriter, r *http.Request) {
		alias := strings.TrimPrefix(r.URL.Path, MetricsPathPrefix)
		if alias == "" || strings.Contains(alias, "/") {
			http.NotFound(w, r)
			return
		}
		ctx := context.WithLogger(r.Context(), s.log)
		text, err := s.Scrape(ctx, alias)
		switch {
		case errors.Is(err, ErrUnknownTarget):
			http.NotFound(w, r)
			return
		case err != nil:
			s.log.Warn("Failed to scrape target", "alias", alias, "error", err.Error())
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.FmtText))
		_, _ = w.Write([]byte(text))
	})
	mux.HandleFunc(TargetsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s.Targets()); err != nil {
			s.log.Debug("Failed to write targets", "error", err.Error())
		}
	})
	return mux
}
