package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/config"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/gateway"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/telemetry"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	gateway.NewWebSocketHandler(services.Connections).RegisterRoutes(mux)
	setupHealthCheck(mux)

	handler := telemetry.Middleware(c.Handler(mux), serviceName)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	timerPath, timerHandler := services.Timers.Handler()
	mux.Handle(timerPath, timerHandler)

	reportPath, reportHandler := services.Reports.Handler()
	mux.Handle(reportPath, reportHandler)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
