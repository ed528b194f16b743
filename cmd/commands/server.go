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
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/numaproj/numastats/pkg/config"
	"github.com/numaproj/numastats/pkg/daemon/server"
	"github.com/numaproj/numastats/pkg/shared/logging"
	sharedutil "github.com/numaproj/numastats/pkg/shared/util"
)

func NewServerCommand() *cobra.Command {
	var (
		configFile string
		envFile    string
	)
	v := config.New()

	command := &cobra.Command{
		Use:   "server",
		Short: "Start a numastats server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger().Named("server")
			defer func() { _ = logger.Sync() }()
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			reloaded := make(chan *config.GlobalConfig, 1)
			cfg, err := config.LoadConfig(v, configFile, func(c *config.GlobalConfig) {
				logger.Infow("Configuration reloaded", zap.Duration("refreshInterval", c.Statistics.RefreshInterval))
				select {
				case <-reloaded:
				default:
				}
				reloaded <- c
			}, func(err error) {
				logger.Errorw("Failed to reload configuration", zap.Error(err))
			})
			if err != nil {
				return err
			}

			ds, err := server.NewDaemonServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create the server: %w", err)
			}
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case c := <-reloaded:
						ds.ApplyConfig(c)
					}
				}
			}()
			return ds.Run(ctx)
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", sharedutil.LookupEnvStringOr("NUMASTATS_CONFIG", ""), "Path to a YAML configuration file, watched for changes.")
	command.Flags().StringVar(&envFile, "env-file", "", "Path to a dotenv file loaded before reading the environment.")
	command.Flags().IntP("port", "p", 8080, "Port of the REST API.")
	command.Flags().Int("metrics-port", 9090, "Port of the metrics server.")
	command.Flags().Int64("window-millis", 60000, "Length of the rolling window in milliseconds.")
	command.Flags().Int("num-buckets", 60, "Number of buckets the window is split into, must divide the window.")
	command.Flags().Duration("refresh-interval", 0, "Interval between two snapshots of the statistics, defaults to 100ms.")
	command.Flags().Bool("readonly", false, "Whether to reject submissions and resets.")
	command.Flags().Bool("log-sink", false, "Whether to log every refreshed snapshot.")
	bindFlags(v, command, map[string]string{
		"port":             config.KeyServerPort,
		"metrics-port":     config.KeyMetricsPort,
		"window-millis":    config.KeyWindowMillis,
		"num-buckets":      config.KeyNumBuckets,
		"refresh-interval": config.KeyRefreshInterval,
		"readonly":         config.KeyServerReadOnly,
		"log-sink":         config.KeyLogSinkEnabled,
	})
	return command
}

// bindFlags makes a flag win over the file and the environment only when it is set.
func bindFlags(v *viper.Viper, command *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, command.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
