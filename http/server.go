package http

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/divanjapones/notifier"
)

const (
	shutdownTimeout = 5 * time.Second
)

// Flusher runs a manual notification flush
type Flusher interface {
	Flush(ctx context.Context) (*notifier.FlushSummary, error)
}

// Server represents HTTP server
type Server struct {
	ln     net.Listener
	server *http.Server
	router *mux.Router

	Addr   string
	Domain string

	HMACSecret string

	SubscriberService notifier.SubscriberService
	ArticleService    notifier.ArticleService
	MagazineService   notifier.MagazineService
	QueueService      notifier.QueueService
	Flusher           Flusher

	// Gatherer backs /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
}

// NewServer create new HTTP server
func NewServer(logger zerolog.Logger) (*Server, error) {
	s := &Server{
		server:   &http.Server{ReadHeaderTimeout: 10 * time.Second},
		router:   mux.NewRouter().StrictSlash(true),
		Gatherer: prometheus.DefaultGatherer,
	}

	s.router.Use(hlog.NewHandler(logger))
	s.router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	}))
	s.router.Use(hlog.UserAgentHandler("user_agent"))
	s.router.Use(hlog.RefererHandler("referer"))
	s.router.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	s.router.Use(sentryHandler.Handle)

	s.server.Handler = http.HandlerFunc(s.serveHTTP)

	s.router.HandleFunc("/health", s.healthCheckHandler)
	s.router.Handle("/metrics", http.HandlerFunc(s.metricsHandler))

	api := s.router.PathPrefix("/api").Subrouter()

	newsletter := api.PathPrefix("/newsletter").Subrouter()
	newsletter.HandleFunc("/subscribe", s.Error(s.subscribeHandler)).Methods(http.MethodPost)
	newsletter.HandleFunc("/subscribers", s.Error(s.listSubscribersHandler)).Methods(http.MethodGet)
	newsletter.HandleFunc("/unsubscribe", s.Error(s.unsubscribeHandler)).Methods(http.MethodGet)

	api.HandleFunc("/notifications/flush-pending", s.Error(s.flushPendingHandler)).Methods(http.MethodPost)

	api.HandleFunc("/articles", s.Error(s.listArticlesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/articles", s.Error(s.createArticleHandler)).Methods(http.MethodPost)
	api.HandleFunc("/magazines", s.Error(s.listMagazinesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/magazines", s.Error(s.createMagazineHandler)).Methods(http.MethodPost)

	return s, nil
}

// Scheme returns scheme
func (s *Server) Scheme() string {
	if s.UseTLS() {
		return "https"
	}
	return "http"
}

// UseTLS checks if server use TLS or not
func (s *Server) UseTLS() bool {
	return s.Domain != ""
}

// Port returns server port
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// URL returns server URL
func (s *Server) URL() string {
	scheme, port := s.Scheme(), s.Port()

	domain := "localhost"
	if s.Domain != "" {
		domain = s.Domain
	}

	if port == 80 || port == 443 || flag.Lookup("test.v") != nil {
		return fmt.Sprintf("%s://%s", scheme, domain)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, domain, s.Port())
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// Open opens a connection to HTTP server
func (s *Server) Open() (err error) {
	s.ln, err = net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Errorf("failed to listen to port %s: %v", s.Addr, err)
	}

	go func() {
		_ = s.server.Serve(s.ln)
	}()

	return nil
}

// Close shutdowns HTTP server
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
