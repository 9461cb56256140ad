// Package webhook is the inbound HTTP edge: it receives Twilio message
// callbacks and hands them to the command router.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// InboundHandler processes one inbound message and returns the reply text.
type InboundHandler interface {
	HandleInboundMessage(ctx context.Context, owner, text string) string
}

// emptyTwiML acknowledges the callback without queueing an extra message;
// replies go out through the notifier instead.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type Server struct {
	httpServer *http.Server
	limiter    *ipRateLimiter
	log        *zap.Logger
}

func NewServer(addr string, inbound InboundHandler, metricsHandler http.Handler, log *zap.Logger) *Server {
	limiter := newIPRateLimiter(rate.Limit(2), 60)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(limiter.middleware)
		r.Post("/webhook", handleInbound(inbound, log))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		limiter: limiter,
		log:     log,
	}
}

// Handler exposes the route tree. Test hook.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info("webhook server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	return s.httpServer.Shutdown(ctx)
}

func handleInbound(inbound InboundHandler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		owner := r.PostFormValue("From")
		body := r.PostFormValue("Body")
		if owner == "" || body == "" {
			http.Error(w, "From and Body are required", http.StatusBadRequest)
			return
		}

		reply := inbound.HandleInboundMessage(r.Context(), owner, body)
		log.Debug("handled inbound message",
			zap.String("owner", owner), zap.Int("reply_len", len(reply)))

		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(emptyTwiML))
	}
}
