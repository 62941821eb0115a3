package run

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type metricsServer struct {
	server *http.Server
}

func newMetricsServer(addr string, handler http.Handler) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &metricsServer{server: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (m *metricsServer) serve(ctx context.Context, logger *logrus.Logger) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.server.Shutdown(shutdownCtx)
	}()
	logger.Infof("metrics listening on http://%s/metrics", m.server.Addr)
	if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("metrics server: %v", err)
	}
}
