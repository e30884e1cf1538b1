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
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/acleone/sageserver/confengine"
	"github.com/acleone/sageserver/internal/metricstorage"
	"github.com/acleone/sageserver/internal/sigs"
	"github.com/acleone/sageserver/logger"
	"github.com/acleone/sageserver/server"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the manager-side admin HTTP server (metrics, pprof, live log level)",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(serveConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		svr, err := server.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
			os.Exit(1)
		}
		if svr == nil {
			fmt.Fprintln(os.Stderr, "server.enabled is false in config; nothing to serve")
			os.Exit(1)
		}

		storage, err := metricstorage.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create metrics storage: %v\n", err)
			os.Exit(1)
		}

		setupServeRoutes(svr, storage)

		go func() {
			if err := svr.ListenAndServe(); err != nil {
				logger.Errorf("admin server stopped: %v", err)
			}
		}()

		<-sigs.Terminate()
		if storage != nil {
			storage.Close()
		}
	},
	Example: "# sageworker serve --config sageworker.yaml",
}

// setupServeRoutes 挂载管理路由：/-/logger 热改日志级别
// /metrics 走 promhttp /worker/metrics 走 metricstorage
func setupServeRoutes(svr *server.Server, storage *metricstorage.Storage) {
	svr.RegisterPostRoute("/-/logger", func(w http.ResponseWriter, r *http.Request) {
		logger.SetLoggerLevel(r.FormValue("level"))
		w.Write([]byte(`{"status": "success"}`))
	})

	svr.RegisterGetRoute("/metrics", promhttp.Handler().ServeHTTP)
	svr.RegisterGetRoute("/worker/metrics", func(w http.ResponseWriter, r *http.Request) {
		if storage != nil {
			storage.WritePrometheus(w)
		}
	})
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "sageworker.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd)
}
