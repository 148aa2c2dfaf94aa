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

// Package opsserver runs the plain-HTTP operational side-channel: Prometheus
// metrics, pprof, and a liveness probe. It never carries KV traffic, which
// stays on the muxed TLS connections served by kvserver.
package opsserver

import (
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kvnet/kvnetd/common"
	"github.com/kvnet/kvnetd/confengine"
	"github.com/kvnet/kvnetd/logger"
)

// Config controls whether the operational server runs and how.
type Config struct {
	Enabled bool          `config:"enabled"`
	Address string        `config:"address"`
	Pprof   bool          `config:"pprof"`
	Timeout time.Duration `config:"timeout"`
}

// Server is a plain HTTP server for operational endpoints.
type Server struct {
	config Config
	router *mux.Router
	server *http.Server
}

// New builds a Server from the "ops" section of conf. It returns a nil
// *Server, nil error when the section disables the server; callers must
// check for that before calling ListenAndServe.
func New(conf *confengine.Config) (*Server, error) {
	var config Config
	if err := conf.UnpackChild("ops", &config); err != nil {
		return nil, err
	}
	if !config.Enabled {
		return nil, nil
	}

	router := mux.NewRouter()
	s := &Server{
		config: config,
		router: router,
		server: &http.Server{
			Handler:      router,
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
	}

	s.RegisterGetRoute("/metrics", func(w http.ResponseWriter, r *http.Request) {
		RecordUptimeAndBuild()
		promhttp.Handler().ServeHTTP(w, r)
	})
	s.RegisterGetRoute("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.RegisterGetRoute("/-/build", func(w http.ResponseWriter, r *http.Request) {
		bi := common.GetBuildInfo()
		w.Write([]byte(bi.Version + " " + bi.GitHash + " " + bi.Time))
	})
	s.RegisterPostRoute("/-/logger", func(w http.ResponseWriter, r *http.Request) {
		logger.SetLoggerLevel(r.FormValue("level"))
		w.Write([]byte(`{"status": "success"}`))
	})

	if config.Pprof {
		s.registerPprofRoutes()
	}
	return s, nil
}

// ListenAndServe binds config.Address and blocks serving requests.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	logger.Infof("opsserver listening on %s", s.config.Address)
	return s.server.Serve(l)
}

// Close shuts the server down without waiting for in-flight requests.
func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) RegisterGetRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodGet).Path(path).HandlerFunc(f)
}

func (s *Server) RegisterPostRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodPost).Path(path).HandlerFunc(f)
}

func (s *Server) registerPprofRoutes() {
	s.RegisterGetRoute("/debug/pprof/cmdline", pprof.Cmdline)
	s.RegisterGetRoute("/debug/pprof/profile", pprof.Profile)
	s.RegisterGetRoute("/debug/pprof/symbol", pprof.Symbol)
	s.RegisterGetRoute("/debug/pprof/trace", pprof.Trace)
	s.RegisterGetRoute("/debug/pprof/{other}", pprof.Index)
}
