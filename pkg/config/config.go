/*
Copyright 2022 The Numaproj Authors.

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
// Package config loads the numastats configuration from defaults, an
// optional YAML file, NUMASTATS_ prefixed environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const EnvPrefix = "NUMASTATS"

// Keys of the settings that commands bind flags to.
const (
	KeyWindowMillis    = "statistics.windowMillis"
	KeyNumBuckets      = "statistics.numBuckets"
	KeyMaxCells        = "statistics.maxCells"
	KeyRefreshInterval = "statistics.refreshInterval"
	KeyHistorySize     = "statistics.historySize"
	KeyServerPort      = "server.port"
	KeyCORSOrigins     = "server.corsAllowedOrigins"
	KeyIngestRateLimit = "server.ingestRateLimit"
	KeyIngestBurst     = "server.ingestBurst"
	KeyServerReadOnly  = "server.readonly"
	KeyServerTLS       = "server.tls"
	KeyMetricsPort     = "metrics.port"
	KeyMetricsPprof    = "metrics.pprof"
	KeyMetricsTLS      = "metrics.tls"
	KeyLogSinkEnabled  = "sinks.log.enabled"
	KeyRedisEnabled    = "sinks.redis.enabled"
	KeyRedisAddrs      = "sinks.redis.addrs"
	KeyRedisMasterName = "sinks.redis.masterName"
	KeyRedisUsername   = "sinks.redis.username"
	KeyRedisPassword   = "sinks.redis.password"
	KeyRedisKey        = "sinks.redis.key"
	KeyRedisChannel    = "sinks.redis.channel"
	KeyRedisTTL        = "sinks.redis.ttl"
)

type GlobalConfig struct {
	Statistics StatisticsConfig `json:"statistics" mapstructure:"statistics"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Metrics    MetricsConfig    `json:"metrics" mapstructure:"metrics"`
	Sinks      SinksConfig      `json:"sinks" mapstructure:"sinks"`
}

type StatisticsConfig struct {
	// WindowMillis is the length of the rolling window
	WindowMillis int64 `json:"windowMillis" mapstructure:"windowMillis"`
	// NumBuckets the window is split into, must divide WindowMillis
	NumBuckets int `json:"numBuckets" mapstructure:"numBuckets"`
	// MaxCells caps the cells of each striped accumulator, 0 sizes it after GOMAXPROCS
	MaxCells int `json:"maxCells" mapstructure:"maxCells"`
	// RefreshInterval between two snapshots of the window, reloadable at runtime
	RefreshInterval time.Duration `json:"refreshInterval" mapstructure:"refreshInterval"`
	HistorySize     int           `json:"historySize" mapstructure:"historySize"`
}

// BucketMillis returns the length of one bucket.
func (s StatisticsConfig) BucketMillis() int64 {
	if s.NumBuckets <= 0 {
		return 0
	}
	return s.WindowMillis / int64(s.NumBuckets)
}

type ServerConfig struct {
	Port               int      `json:"port" mapstructure:"port"`
	CORSAllowedOrigins []string `json:"corsAllowedOrigins" mapstructure:"corsAllowedOrigins"`
	// IngestRateLimit is the sustained transactions per second accepted, 0 disables limiting
	IngestRateLimit float64 `json:"ingestRateLimit" mapstructure:"ingestRateLimit"`
	IngestBurst     int     `json:"ingestBurst" mapstructure:"ingestBurst"`
	// ReadOnly rejects submissions and resets
	ReadOnly bool `json:"readonly" mapstructure:"readonly"`
	// TLS serves the API over a self-signed certificate
	TLS bool `json:"tls" mapstructure:"tls"`
}

type MetricsConfig struct {
	Port  int  `json:"port" mapstructure:"port"`
	Pprof bool `json:"pprof" mapstructure:"pprof"`
	TLS   bool `json:"tls" mapstructure:"tls"`
}

type SinksConfig struct {
	Log   LogSinkConfig   `json:"log" mapstructure:"log"`
	Redis RedisSinkConfig `json:"redis" mapstructure:"redis"`
}

type LogSinkConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

type RedisSinkConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Addrs   []string `json:"addrs" mapstructure:"addrs"`
	// MasterName switches to sentinel mode
	MasterName string        `json:"masterName" mapstructure:"masterName"`
	Username   string        `json:"username" mapstructure:"username"`
	Password   string        `json:"-" mapstructure:"password"`
	Key        string        `json:"key" mapstructure:"key"`
	Channel    string        `json:"channel" mapstructure:"channel"`
	TTL        time.Duration `json:"ttl" mapstructure:"ttl"`
}

// New returns a viper instance carrying the defaults and reading the environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyWindowMillis, 60000)
	v.SetDefault(KeyNumBuckets, 60)
	v.SetDefault(KeyMaxCells, 0)
	v.SetDefault(KeyRefreshInterval, 100*time.Millisecond)
	v.SetDefault(KeyHistorySize, 60)
	v.SetDefault(KeyServerPort, 8080)
	v.SetDefault(KeyCORSOrigins, []string{})
	v.SetDefault(KeyIngestRateLimit, 0)
	v.SetDefault(KeyIngestBurst, 0)
	v.SetDefault(KeyServerReadOnly, false)
	v.SetDefault(KeyServerTLS, false)
	v.SetDefault(KeyMetricsPort, 9090)
	v.SetDefault(KeyMetricsPprof, false)
	v.SetDefault(KeyMetricsTLS, false)
	v.SetDefault(KeyLogSinkEnabled, false)
	v.SetDefault(KeyRedisEnabled, false)
	v.SetDefault(KeyRedisAddrs, []string{"localhost:6379"})
	v.SetDefault(KeyRedisMasterName, "")
	v.SetDefault(KeyRedisUsername, "")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisKey, "numastats:statistics")
	v.SetDefault(KeyRedisChannel, "")
	v.SetDefault(KeyRedisTTL, time.Duration(0))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEnvFile loads a dotenv file into the process environment. Variables
// that are already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

// LoadConfig reads the optional config file and returns the validated
// configuration. When a file is given it is watched: every valid change is
// passed to onChange, failures to onErrorReloading.
func LoadConfig(v *viper.Viper, configFile string, onChange func(*GlobalConfig), onErrorReloading func(error)) (*GlobalConfig, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file. %w", err)
		}
	}
	r, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			reloaded, err := unmarshal(v)
			if err != nil {
				if onErrorReloading != nil {
					onErrorReloading(fmt.Errorf("failed to reload %q: %w", e.Name, err))
				}
				return
			}
			if onChange != nil {
				onChange(reloaded)
			}
		})
		v.WatchConfig()
	}
	return r, nil
}

func unmarshal(v *viper.Viper) (*GlobalConfig, error) {
	r := &GlobalConfig{}
	if err := v.Unmarshal(r); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration. %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return r, nil
}

// Validate returns every problem of the configuration at once.
func (g *GlobalConfig) Validate() error {
	var err error
	s := g.Statistics
	if s.WindowMillis <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive, got %d", KeyWindowMillis, s.WindowMillis))
	}
	if s.NumBuckets <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive, got %d", KeyNumBuckets, s.NumBuckets))
	} else if s.WindowMillis > 0 && s.WindowMillis%int64(s.NumBuckets) != 0 {
		err = multierr.Append(err, fmt.Errorf("%s (%d) must be a multiple of %s (%d)", KeyWindowMillis, s.WindowMillis, KeyNumBuckets, s.NumBuckets))
	}
	if s.MaxCells < 0 {
		err = multierr.Append(err, fmt.Errorf("%s must not be negative, got %d", KeyMaxCells, s.MaxCells))
	}
	if s.RefreshInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive, got %s", KeyRefreshInterval, s.RefreshInterval))
	}
	if s.HistorySize <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive, got %d", KeyHistorySize, s.HistorySize))
	}
	for _, p := range []struct {
		key  string
		port int
	}{{KeyServerPort, g.Server.Port}, {KeyMetricsPort, g.Metrics.Port}} {
		if p.port < 0 || p.port > 65535 {
			err = multierr.Append(err, fmt.Errorf("%s must be a valid port, got %d", p.key, p.port))
		}
	}
	if g.Server.Port != 0 && g.Server.Port == g.Metrics.Port {
		err = multierr.Append(err, fmt.Errorf("%s and %s must differ", KeyServerPort, KeyMetricsPort))
	}
	if g.Server.IngestRateLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("%s must not be negative", KeyIngestRateLimit))
	}
	if g.Server.IngestRateLimit > 0 && g.Server.IngestBurst <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive when %s is set", KeyIngestBurst, KeyIngestRateLimit))
	}
	if r := g.Sinks.Redis; r.Enabled {
		if len(r.Addrs) == 0 {
			err = multierr.Append(err, fmt.Errorf("%s is required when the redis sink is enabled", KeyRedisAddrs))
		}
		if r.TTL < 0 {
			err = multierr.Append(err, fmt.Errorf("%s must not be negative", KeyRedisTTL))
		}
	}
	return err
}

var errSlowRefresh = errors.New("refresh interval is not shorter than a bucket, readers will lag by more than one bucket")

// Warnings returns problems that do not prevent starting.
func (g *GlobalConfig) Warnings() []error {
	var warnings []error
	if b := g.Statistics.BucketMillis(); b > 0 && g.Statistics.RefreshInterval >= time.Duration(b)*time.Millisecond {
		warnings = append(warnings, fmt.Errorf("%w: %s >= %dms", errSlowRefresh, g.Statistics.RefreshInterval, b))
	}
	return warnings
}
