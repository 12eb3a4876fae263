package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chfgma/clicktocall/calls"
	"github.com/chfgma/clicktocall/config"
	"github.com/chfgma/clicktocall/pages"
)

const OutboundRoute = "outbound"

type options struct {
	newPlacer calls.PlacerFactory
}

type Option func(*options)

// WithPlacerFactory replaces the Twilio client used by /call.
func WithPlacerFactory(f calls.PlacerFactory) Option {
	return func(o *options) {
		o.newPlacer = f
	}
}

// New wires the demo's routes.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*mux.Router, error) {
	o := options{newPlacer: calls.TwilioFactory(nil, "")}
	for _, opt := range opts {
		opt(&o)
	}

	p, err := pages.New(logger.With(zap.String("component", "pages")))
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Use(logRequests(logger.With(zap.String("component", "http"))))

	outbound := router.Handle("/outbound", calls.NewOutboundHandler(cfg, logger.With(zap.String("component", "outbound")))).
		Methods(http.MethodPost).
		Name(OutboundRoute)

	outboundPath, err := outbound.URLPath()
	if err != nil {
		return nil, errors.Wrap(err, "building outbound path")
	}

	router.Handle("/call", calls.NewCallHandler(cfg, o.newPlacer, outboundPath.Path, logger.With(zap.String("component", "call")))).
		Methods(http.MethodPost)
	router.HandleFunc("/", p.Handler(pages.Index)).Methods(http.MethodGet)
	router.HandleFunc("/landing.html", p.Handler(pages.Landing)).Methods(http.MethodGet)
	static, err := pages.Static()
	if err != nil {
		return nil, err
	}
	router.PathPrefix("/static/").Handler(static).Methods(http.MethodGet)

	return router, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
