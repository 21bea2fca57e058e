package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/ulule/limiter/v3"
	mstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

type M = render.M

const authRealm = "agrochat"

func (s *server) authMw() func(next http.Handler) http.Handler {
	if len(s.cfg.AuthUser) > 0 {
		return middleware.BasicAuth(authRealm, map[string]string{s.cfg.AuthUser: s.cfg.AuthPass})
	}
	return func(next http.Handler) http.Handler {
		return next
	}
}

func (s *server) rateMw() func(next http.Handler) http.Handler {
	if len(s.cfg.RateLimit) > 0 {
		rate, err := limiter.NewRateFromFormatted(s.cfg.RateLimit)
		if err == nil {
			lmt := limiter.New(memory.NewStore(), rate)
			return mstdlib.NewMiddleware(lmt).Handler
		}
		logger().Infow("invalid rate limit, ignored", "rate", s.cfg.RateLimit, "err", err)
	}
	return func(next http.Handler) http.Handler {
		return next
	}
}

func (s *server) strapRouter() {

	s.ar.Get("/ping", handlerPing)

	s.ar.Route("/api", func(r chi.Router) {
		r.Use(s.authMw(), s.rateMw())
		r.Get("/models", s.getModels)
		r.Post("/chat", s.postChat)
		r.Get("/chat/ws", s.chatSocket)
		r.Delete("/session", s.deleteSession)
		r.Post("/search", s.postSearch)
		r.Get("/docs/{source}", s.getDocs)
	})

	s.ar.Group(func(r chi.Router) {
		r.Use(s.authMw())
		if s.cfg.DocHandler != nil {
			r.Get("/", s.cfg.DocHandler.ServeHTTP)
			r.NotFound(s.cfg.DocHandler.ServeHTTP)
		}
	})
}

func handlerPing(w http.ResponseWriter, r *http.Request) {
	render.Data(w, r, []byte("Pong\n"))
}

func apiFail(w http.ResponseWriter, r *http.Request, status int, err interface{}) {
	res := render.M{
		"status": status,
		"error":  err,
	}
	switch ret := err.(type) {
	case error:
		res["error"] = ret.Error()
		res["message"] = ret.Error()
	case fmt.Stringer:
		res["message"] = ret.String()
	case string, *string, []byte:
		res["message"] = ret
	}
	render.Status(r, status)
	render.JSON(w, r, res)
}

type RespDone struct {
	Status int `json:"status"`
	Data   any `json:"data,omitempty"`
	Count  int `json:"count,omitempty"`
}

func apiOk(w http.ResponseWriter, r *http.Request, args ...any) {
	res := &RespDone{}
	if len(args) > 0 && args[0] != nil {
		res.Data = args[0]
		if len(args) > 1 {
			if c, ok := args[1].(int); ok {
				res.Count = c
			}
		}
	}

	render.JSON(w, r, res)
}
