package main

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/simulive/go/internal/chat"
	"github.com/mcdev12/simulive/go/internal/gateway"
	"github.com/mcdev12/simulive/go/internal/presence"
	"github.com/mcdev12/simulive/go/internal/session"
	"github.com/mcdev12/simulive/go/internal/timeref"
)

func setupServer(services *Services, config *Config) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerRoutes(mux, services)
	setupHealthCheck(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerRoutes(mux *http.ServeMux, services *Services) {
	timeref.NewHandler(clockwork.NewRealClock()).RegisterRoutes(mux)
	session.NewHandler(services.Sessions).RegisterRoutes(mux)
	chat.NewHandler(services.Chat).RegisterRoutes(mux)
	presence.NewHandler(services.Presence).RegisterRoutes(mux)
	gateway.NewHandler(services.Gateway).RegisterRoutes(mux)

	mux.Handle("GET /metrics", services.Metrics.Handler())
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})
}
