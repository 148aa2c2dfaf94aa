// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kvnet/kvnetd/confengine"
	"github.com/kvnet/kvnetd/internal/sigs"
	"github.com/kvnet/kvnetd/kvserver"
	"github.com/kvnet/kvnetd/logger"
	"github.com/kvnet/kvnetd/opsserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kvnetd server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		if err := setupLogger(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to configure logger: %v\n", err)
			os.Exit(1)
		}

		srv, err := kvserver.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
			os.Exit(1)
		}
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}

		ops, err := opsserver.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create ops server: %v\n", err)
			os.Exit(1)
		}
		if ops != nil {
			go func() {
				if err := ops.ListenAndServe(); err != nil {
					logger.Errorf("ops server stopped: %v", err)
				}
			}()
		}

		logger.Infof("kvnetd serving, config=%s", configPath)

		for {
			select {
			case <-sigs.Terminate():
				srv.Stop()
				if ops != nil {
					ops.Close()
				}
				return

			case <-sigs.Reload():
				logger.Infof("reload signal received; restart the process to pick up config changes")
			}
		}
	},
	Example: "# kvnetd serve --config kvnetd.yaml",
}

var configPath string

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}
	if opts.Filename == "" && !opts.Stdout {
		opts.Stdout = true
	}
	logger.SetOptions(opts)
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "kvnetd.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd)
}
