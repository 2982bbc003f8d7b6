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
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of every environment variable read by the harness.
const EnvPrefix = "HYPERSWARM_E2E_"

// Environment variables recognized by LoadEnv.
const (
	ConfigFileEnvVar             = EnvPrefix + "CONFIG"
	LogLevelEnvVar               = EnvPrefix + "LOG_LEVEL"
	DiscoveryKeyEnvVar           = EnvPrefix + "DISCOVERY_KEY"
	FileLocEnvVar                = EnvPrefix + "FILE_LOC"
	BootstrapPeersEnvVar         = EnvPrefix + "BOOTSTRAP_PEERS"
	ListenAddrsEnvVar            = EnvPrefix + "LISTEN_ADDRS"
	ConnectTimeoutEnvVar         = EnvPrefix + "CONNECT_TIMEOUT"
	LookupIntervalEnvVar         = EnvPrefix + "LOOKUP_INTERVAL"
	DisableMetricsEnvVar         = EnvPrefix + "DISABLE_METRICS"
	PrometheusServiceNameEnvVar  = EnvPrefix + "PROMETHEUS_SERVICE_NAME"
	PrometheusAliasEnvVar        = EnvPrefix + "PROMETHEUS_ALIAS"
	PrometheusSecretEnvVar       = EnvPrefix + "PROMETHEUS_SECRET"
	PrometheusScraperKeyEnvVar   = EnvPrefix + "PROMETHEUS_SCRAPER_PUBLIC_KEY"
	PrometheusScraperAddrsEnvVar = EnvPrefix + "PROMETHEUS_SCRAPER_ADDRS"
	MetricsReadyTimeoutEnvVar    = EnvPrefix + "METRICS_READY_TIMEOUT"
	MetricsListenAddressEnvVar   = EnvPrefix + "METRICS_LISTEN_ADDRESS"
	ProgressEveryEnvVar          = EnvPrefix + "PROGRESS_EVERY"
)

// GetEnvDefault returns the value of an environment variable or a default value.
func GetEnvDefault(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

// GetEnvIntDefault returns the value of an environment variable or a default value.
func GetEnvIntDefault(key string, def int) int {
	if val := GetEnvDefault(key, strconv.Itoa(def)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// GetEnvDurationDefault returns the value of an environment variable or a default value.
func GetEnvDurationDefault(key string, def time.Duration) time.Duration {
	if val := GetEnvDefault(key, def.String()); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

// GetEnvBoolDefault returns the value of an environment variable or a default value.
func GetEnvBoolDefault(key string, def bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// GetEnvSliceDefault returns the comma separated values of an environment
// variable or a default value.
func GetEnvSliceDefault(key string, def []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, v := range strings.Split(val, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
