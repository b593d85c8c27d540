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

// Package diagnostics serves an optional HTTP endpoint for long-lived
// consumers: Prometheus metrics, a liveness probe, and a runtime log-level
// switch. Nothing in the connection/channel FSMs depends on this package;
// it is purely an operational add-on a caller may start alongside a Dial.
package diagnostics

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packetd/goamqp/common"
	"github.com/packetd/goamqp/confengine"
	"github.com/packetd/goamqp/logger"
)

// Config is read from the "diagnostics" section of the YAML Dial
// configuration.
type Config struct {
	Enabled bool          `config:"enabled"`
	Address string        `config:"address"`
	Pprof   bool          `config:"pprof"`
	Timeout time.Duration `config:"timeout"`
}

// HealthFunc reports whether the monitored connection is currently open.
type HealthFunc func() bool

// Server is the diagnostics HTTP server.
type Server struct {
	config Config
	router *mux.Router
	server *http.Server
}

// New builds a Server from the "diagnostics" section of conf. It returns a
// nil *Server, nil error when diagnostics are disabled; callers must check
// before calling ListenAndServe.
func New(conf *confengine.Config, health HealthFunc) (*Server, error) {
	var config Config
	if err := conf.UnpackChild("diagnostics", &config); err != nil {
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

	s.RegisterGetRoute("/metrics", promhttp.Handler().ServeHTTP)
	s.RegisterGetRoute("/healthz", s.routeHealthz(health))
	s.RegisterPostRoute("/-/logger", s.routeLogger)
	if config.Pprof {
		s.registerPprofRoutes()
	}
	return s, nil
}

func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	logger.Infof("diagnostics server listening on %s", s.config.Address)
	return s.server.Serve(l)
}

func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) RegisterGetRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodGet).Path(path).HandlerFunc(f)
}

func (s *Server) RegisterPostRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodPost).Path(path).HandlerFunc(f)
}

func (s *Server) routeHealthz(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := time.Now().Unix() - common.Started()
		if health == nil || !health() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status": "closed", "uptime_seconds": %d}`, uptime)
			return
		}
		fmt.Fprintf(w, `{"status": "open", "uptime_seconds": %d}`, uptime)
	}
}

func (s *Server) routeLogger(w http.ResponseWriter, r *http.Request) {
	level := r.FormValue("level")
	logger.SetLoggerLevel(level)
	w.Write([]byte(`{"status": "success"}`))
}

func (s *Server) registerPprofRoutes() {
	s.RegisterGetRoute("/debug/pprof/cmdline", pprof.Cmdline)
	s.RegisterGetRoute("/debug/pprof/profile", pprof.Profile)
	s.RegisterGetRoute("/debug/pprof/symbol", pprof.Symbol)
	s.RegisterGetRoute("/debug/pprof/trace", pprof.Trace)
	s.RegisterGetRoute("/debug/pprof/{other}", pprof.Index)
}
