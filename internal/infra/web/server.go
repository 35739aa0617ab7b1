package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-chat-client/internal/domain/ports/adapter"
	"ai-chat-client/internal/infra/logging"
	redisinfra "ai-chat-client/internal/infra/redis"
	"ai-chat-client/internal/usecase"
)

// ChatRateLimiter guards the completion route per caller.
type ChatRateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	registry      *usecase.SessionRegistry
	auth          *AuthManager
	limiter       ChatRateLimiter
	ai            adapter.AIServiceAdapter
	modelName     string
	params        adapter.ChatParams
	ratePerMinute int
	log           *zerolog.Logger
}

func NewServer(
	registry *usecase.SessionRegistry,
	auth *AuthManager,
	limiter ChatRateLimiter,
	ai adapter.AIServiceAdapter,
	modelName string,
	params adapter.ChatParams,
	ratePerMinute int,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		registry:      registry,
		auth:          auth,
		limiter:       limiter,
		ai:            ai,
		modelName:     modelName,
		params:        params,
		ratePerMinute: ratePerMinute,
		log:           logger,
	}
}

// Router wires all routes. Session and history routes require a caller
// identity; the completion proxy additionally passes the rate limiter.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(traceMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.loginHandler)
		r.Post("/auth/logout", s.logoutHandler)

		r.Get("/models", s.modelsHandler)
		r.With(s.rateLimitMiddleware).Post("/chat/completions", s.completionsHandler)

		r.Route("/session", func(r chi.Router) {
			r.Use(s.identityMiddleware)
			r.Get("/", s.sessionStateHandler)
			r.Post("/messages", s.sendMessageHandler)
			r.Post("/new", s.newChatHandler)
			r.Post("/save", s.saveHandler)
			r.Post("/load/{id}", s.loadHandler)
		})

		r.Route("/history", func(r chi.Router) {
			r.Use(s.identityMiddleware)
			r.Get("/", s.historyListHandler)
			r.Patch("/{id}", s.historyRenameHandler)
			r.Delete("/{id}", s.historyDeleteHandler)
		})
	})

	return r
}

// traceMiddleware tags every request with a trace id, honoring one supplied
// by an upstream proxy.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}

type ctxKey int

const identityKey ctxKey = 1

type identity struct {
	ClientID string
	OwnerID  string // empty for anonymous callers
}

// identityMiddleware resolves who is calling. A valid token yields an
// authenticated identity; otherwise an X-Client-ID header names an anonymous
// session that can chat but not touch the store.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.resolveIdentity(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		if id.OwnerID != "" {
			ctx = logging.WithOwnerID(ctx, id.OwnerID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) resolveIdentity(r *http.Request) (identity, bool) {
	if claims, err := s.auth.ParseFromRequest(r); err == nil && claims.OwnerID() != "" {
		return identity{ClientID: claims.OwnerID(), OwnerID: claims.OwnerID()}, true
	}
	// Anonymous ids live in their own namespace so a forged header can never
	// collide with an authenticated owner's session.
	if cid := r.Header.Get("X-Client-ID"); cid != "" {
		return identity{ClientID: "anon:" + cid}, true
	}
	return identity{}, false
}

func callerIdentity(r *http.Request) identity {
	id, _ := r.Context().Value(identityKey).(identity)
	return id
}

// rateLimitMiddleware applies the fixed-window chat limit per caller. The
// limiter failing open would hide an outage, so a limiter error rejects too.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.ratePerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		id, ok := s.resolveIdentity(r)
		key := id.ClientID
		if !ok {
			key = r.RemoteAddr
		}
		allowed, err := s.limiter.Allow(r.Context(), redisinfra.ChatKey(key), s.ratePerMinute, time.Minute)
		if err != nil {
			s.log.Error().Err(err).Msg("rate limiter unavailable")
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		if !allowed {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
