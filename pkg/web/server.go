package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liut/agrochat/pkg/models/search"
	"github.com/liut/agrochat/pkg/services/backend"
	"github.com/liut/agrochat/pkg/services/stores"
)

type Service interface {
	Serve(ctx context.Context) error
	Stop(ctx context.Context) error
	Handler() http.Handler
}

// Backend is the part of the agent API used by the pages
type Backend interface {
	Agent(ctx context.Context, path string, ar backend.AgentRequest) (io.ReadCloser, error)
	SearchAndRetrieve(ctx context.Context, q search.Query) (search.Result, error)
	ListModels(ctx context.Context) ([]string, error)
}

type Config struct {
	Addr  string
	Debug bool

	DocHandler http.Handler

	Backend  Backend
	Sessions *stores.Sessions

	AuthUser    string
	AuthPass    string
	RateLimit   string // like "60-M", empty for none
	ChatTimeout time.Duration

	CookieName   string
	CookiePath   string
	CookieDomain string
	CookieMaxAge int
}

type server struct {
	Addr string
	cfg  Config

	be  Backend
	sto *stores.Sessions

	ar *chi.Mux     // app router
	hs *http.Server // http server
}

// New return new web server
func New(cfg Config) Service {
	ar := chi.NewMux()
	if cfg.Debug {
		ar.Use(middleware.Logger)
	}
	ar.Use(middleware.Recoverer, middleware.RealIP)

	if len(cfg.CookieName) == 0 {
		cfg.CookieName = dftCookieName
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = dftChatTimeout
	}

	s := &server{
		Addr: cfg.Addr, ar: ar,
		cfg: cfg,
		be:  cfg.Backend,
		sto: cfg.Sessions,
	}
	s.strapRouter()

	s.hs = &http.Server{
		Addr:              s.Addr,
		Handler:           s.ar,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Debug {
		logger().Infow("routes:")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			route = strings.Replace(route, "/*/", "/", -1)
			fmt.Fprintf(os.Stderr, "DEBUG: %-6s %-24s --> %s (%d mw)\n", method, route, nameOfFunction(handler), len(middlewares))
			return nil
		}

		if err := chi.Walk(ar, walkFunc); err != nil {
			logger().Infow("router walk fail", "err", err)
		}
	}
	return s
}

func (s *server) Handler() http.Handler {
	return s.ar
}

func (s *server) Serve(ctx context.Context) error {
	// Run HTTP server
	runErrChan := make(chan error, 1)
	t := time.AfterFunc(time.Millisecond*200, func() {
		runErrChan <- s.hs.ListenAndServe()
	})

	defer t.Stop()
	logger().Infow("Listen on", "addr", s.hs.Addr)

	// Wait
	for {
		select {
		case runErr := <-runErrChan:
			if runErr != nil && runErr != http.ErrServerClosed {
				logger().Infow("run http server failed",
					"err", runErr,
				)
				return runErr
			}
			logger().Info("http server has been stopped")
			return nil
		case <-ctx.Done():
			logger().Info("http server has been stopped")
			return ctx.Err()
		}
	}
}

func (s *server) Stop(ctx context.Context) error {
	if err := s.hs.Shutdown(ctx); err != nil {
		logger().Infow("Server Shutdown", "err", err)
		return err
	}
	return nil
}
