package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsServer exposes the client metrics over HTTP, optionally with the
// runtime profiles next to them
type metricsServer struct {
	server *http.Server
	router *httprouter.Router
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer, profiling bool) *metricsServer {
	s := &metricsServer{router: httprouter.New()}
	s.router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.router.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if profiling {
		s.router.HandlerFunc(http.MethodGet, "/debug/pprof/", pprof.Index)
		s.router.HandlerFunc(http.MethodGet, "/debug/pprof/cmdline", pprof.Cmdline)
		s.router.HandlerFunc(http.MethodGet, "/debug/pprof/profile", pprof.Profile)
		s.router.HandlerFunc(http.MethodGet, "/debug/pprof/symbol", pprof.Symbol)
		s.router.HandlerFunc(http.MethodGet, "/debug/pprof/trace", pprof.Trace)
		for _, name := range []string{"goroutine", "heap", "allocs", "block", "mutex", "threadcreate"} {
			s.router.Handler(http.MethodGet, "/debug/pprof/"+name, pprof.Handler(name))
		}
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Stop is called
func (s *metricsServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *metricsServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
