// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server hosts the HTTP surface: the JSON-RPC custody endpoint,
// health and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/service"
	"github.com/solvault-io/solvaultd/utils/logging"
)

const (
	baseURL     = "/ext"
	custodyPath = baseURL + "/custody"
	healthPath  = baseURL + "/health"
	metricsPath = baseURL + "/metrics"

	// Namespace every RPC method is registered under.
	rpcNamespace = "solvault"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second

	csrfHeader = "X-CSRF-Token"
)

// Server is the process-wide HTTP listener.
type Server struct {
	log      logging.Logger
	listener net.Listener
	srv      *http.Server
}

// New builds the HTTP stack and binds the listener. Dispatch starts
// serving.
func New(
	log logging.Logger,
	host string,
	port uint16,
	allowedOrigins []string,
	gatherer prometheus.Gatherer,
	svc *service.Service,
) (*Server, error) {
	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")
	if err := rpcServer.RegisterService(svc, rpcNamespace); err != nil {
		return nil, fmt.Errorf("registering %s service: %w", rpcNamespace, err)
	}

	router := mux.NewRouter()
	router.Handle(custodyPath, rpcServer).Methods(http.MethodPost)
	router.HandleFunc(healthPath, healthHandler).Methods(http.MethodGet)
	router.Handle(metricsPath, promhttp.HandlerFor(
		gatherer,
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	corsWrapper := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", csrfHeader},
	})

	handler := http.Handler(router)
	handler = csrfGuard(handler)
	handler = corsWrapper.Handler(handler)
	handler = gziphandler.GzipHandler(handler)

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", addr, err)
	}

	return &Server{
		log:      log,
		listener: listener,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// URL reports the bound address, useful when port 0 was requested.
func (s *Server) URL() string {
	return "http://" + s.listener.Addr().String()
}

// Dispatch serves until Shutdown. It returns http.ErrServerClosed on a
// clean shutdown.
func (s *Server) Dispatch() error {
	s.log.Info("HTTP server listening",
		zap.String("address", s.listener.Addr().String()),
	)
	return s.srv.Serve(s.listener)
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// csrfGuard rejects mutating requests that carry no CSRF token header.
// Browsers cannot attach custom headers cross-site without a CORS
// preflight, so requiring one blocks form-based forgery.
func csrfGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if r.Header.Get(csrfHeader) == "" {
				http.Error(w, "missing "+csrfHeader+" header", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": true,
	})
}
