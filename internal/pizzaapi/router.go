// Package pizzaapi implements the JWT Pizza service HTTP API for the twin.
package pizzaapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzastore"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

// Handler holds all API handler state.
type Handler struct {
	store  *pizzastore.MemoryStore
	mw     *twincore.Middleware
	jwtMgr *JWTManager
}

// NewHandler creates a new API handler.
func NewHandler(s *pizzastore.MemoryStore, mw *twincore.Middleware, jwtMgr *JWTManager) *Handler {
	return &Handler{store: s, mw: mw, jwtMgr: jwtMgr}
}

// Routes mounts the JWT Pizza API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.mw.FaultInjection)

		r.Get("/docs", h.GetDocs)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/", h.Register)
			r.Put("/", h.Login)
			r.With(h.authenticate).Delete("/", h.Logout)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(h.authenticate)
			r.Get("/me", h.GetMe)
			r.Put("/{userId}", h.UpdateUser)
		})

		r.Route("/order", func(r chi.Router) {
			r.Get("/menu", h.GetMenu)
			r.Post("/verify", h.VerifyOrder)
			r.Group(func(r chi.Router) {
				r.Use(h.authenticate)
				r.Put("/menu", h.AddMenuItem)
				r.Get("/", h.ListOrders)
				r.Post("/", h.CreateOrder)
			})
		})

		r.Route("/franchise", func(r chi.Router) {
			r.With(h.identify).Get("/", h.ListFranchises)
			r.Group(func(r chi.Router) {
				r.Use(h.authenticate)
				r.Get("/{id}", h.ListUserFranchises)
				r.Post("/", h.CreateFranchise)
				r.Delete("/{id}", h.DeleteFranchise)
				r.Post("/{id}/store", h.CreateStore)
				r.Delete("/{id}/store/{storeId}", h.DeleteStore)
			})
		})
	})
}

type ctxKey struct{}

// caller is the authenticated user and the token they presented.
type caller struct {
	user  pizzastore.User
	token string
}

func callerFrom(ctx context.Context) (caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(caller)
	return c, ok
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth {
		return ""
	}
	return strings.TrimSpace(token)
}

// lookup resolves a bearer token to a live user. Tokens must verify and
// must not have been logged out.
func (h *Handler) lookup(r *http.Request) (caller, bool) {
	token := bearer(r)
	if token == "" {
		return caller{}, false
	}
	claims, err := h.jwtMgr.ParseToken(token)
	if err != nil {
		return caller{}, false
	}
	id, ok := h.store.TokenUser(token)
	if !ok || id != claims.UserID {
		return caller{}, false
	}
	u, ok := h.store.Users.Get(id)
	if !ok {
		return caller{}, false
	}
	return caller{user: u, token: token}, true
}

// authenticate rejects requests without a live token.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := h.lookup(r)
		if !ok {
			twincore.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, c)))
	})
}

// identify attaches the caller when a live token is present but lets
// anonymous requests through.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := h.lookup(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, c))
		}
		next.ServeHTTP(w, r)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
