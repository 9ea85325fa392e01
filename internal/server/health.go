package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported next to the overall status.
const ServiceName = "exambulldozer.Converter"

const shutdownTimeout = 10 * time.Second

// NewGRPCServer returns a gRPC server carrying only the health and
// reflection services, already marked SERVING.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(gs)
	return gs, hs
}

// Serve runs the HTTP API on httpLis and the gRPC health service on grpcLis
// until ctx is done or either server fails, then stops both gracefully.
func Serve(ctx context.Context, httpLis, grpcLis net.Listener, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	gs, hs := NewGRPCServer()
	hsrv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("server.grpc.listening", "addr", grpcLis.Addr().String())
		errCh <- gs.Serve(grpcLis)
	}()
	go func() {
		logger.Info("server.http.listening", "addr", httpLis.Addr().String())
		if err := hsrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("server.shutdown", "reason", ctx.Err())
	case serveErr = <-errCh:
		logger.Error("server.failed", "error", serveErr)
	}

	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hsrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server.http.shutdown_error", "error", err)
	}
	gs.GracefulStop()
	logger.Info("server.stopped")
	return serveErr
}
