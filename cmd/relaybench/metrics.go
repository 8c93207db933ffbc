package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiowebux/relaybench/internal/stresstest"
	"go.uber.org/zap"
)

// serveMetrics exposes the run statistics at http://addr/metrics until the
// returned shutdown function is called. It returns the bound address.
func serveMetrics(addr string, stats *stresstest.Aggregator, logger *zap.Logger) (net.Addr, func(context.Context) error, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		stresstest.NewCollector(stats),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))
	return listener.Addr(), srv.Shutdown, nil
}
