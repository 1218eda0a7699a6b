// Package httpserver は context のキャンセルで停止する HTTP サーバーを提供します。
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/yourusername/session-gate/internal/logutil"
)

// Serve は bind でリッスンし、ctx がキャンセルされるまでリクエストを処理します。
func Serve(ctx context.Context, bind string, handler http.Handler) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	return ServeListener(ctx, listener, handler)
}

// ServeListener は既存の listener で Serve と同じ処理を行います。
func ServeListener(ctx context.Context, listener net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       5 * time.Minute,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	log := logutil.GetOrDefault(ctx).With().Str("server.addr", listener.Addr().String()).Logger()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting HTTP server")
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Initiating shutdown process")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-serveErr
		log.Info().Msg("Shutdown completed")
		return nil
	}
}
