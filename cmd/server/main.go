package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/openrufus/rufus/internal/api/v1/routes"
	"github.com/openrufus/rufus/internal/config"
	"github.com/openrufus/rufus/internal/connections"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/services"
	"github.com/openrufus/rufus/internal/services/chat"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

func main() {
	logger.Setup(config.GetLogLevel(), config.GetEnvironment())

	svcs, err := services.InitializeServices()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer func() {
		if err := svcs.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close services")
		}
	}()

	manager := connections.NewManager(connections.DefaultTimeouts)
	router := setupRouter(svcs.GetChatService(), manager)

	srv := &http.Server{
		Addr:              ":" + config.GetPort(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")

		// Hijacked sockets are invisible to Shutdown.
		closed := manager.CloseAll("server shutting down")
		log.Info().Int("sockets", closed).Msg("Closed chat sockets")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server stopped")
}

func setupRouter(chatService chat.Service, manager *connections.Manager) *mux.Router {
	r := mux.NewRouter()
	routes.RegisterRoutes(r, chatService, manager)
	return r
}
