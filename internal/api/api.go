// Package api exposes the admin HTTP API for NutriBot.
//
// It provides RESTful endpoints for inspecting and editing user profiles and
// their food preference lists. The API is an operator surface and is expected
// to be bound to an internal address.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nutriday/nutribot/internal/store"
)

// Server serves the admin API over a standard net/http server.
type Server struct {
	profiles store.Store
	httpSrv  *http.Server
}

// NewServer creates an admin API server bound to addr.
func NewServer(addr string, profiles store.Store) *Server {
	s := &Server{profiles: profiles}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users", s.listUsersHandler)
	mux.HandleFunc("GET /users/{chatID}", s.getUserHandler)
	mux.HandleFunc("PUT /users/{chatID}", s.upsertUserHandler)
	mux.HandleFunc("PATCH /users/{chatID}", s.updateUserHandler)
	mux.HandleFunc("DELETE /users/{chatID}", s.deleteUserHandler)
	mux.HandleFunc("POST /users/{chatID}/foods/{kind}", s.addFoodsHandler)
	mux.HandleFunc("DELETE /users/{chatID}/foods/{kind}", s.removeFoodHandler)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	slog.Info("Admin API listening", "addr", s.httpSrv.Addr)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin API server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down admin API: %w", err)
	}
	return nil
}
