package pizzaapi

import (
	"errors"
	"net/http"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzastore"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

// credentials is the JSON body of the auth endpoints.
type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is returned by register, login, and user update.
type authResponse struct {
	User  pizzastore.User `json:"user"`
	Token string          `json:"token"`
}

// issue signs a token for u, records it as live, and writes it.
func (h *Handler) issue(w http.ResponseWriter, status int, u pizzastore.User) {
	token, err := h.jwtMgr.GenerateToken(u)
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.store.AddToken(token, u.ID)
	twincore.JSON(w, status, authResponse{User: u.Public(), Token: token})
}

// Register handles POST /api/auth.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		twincore.Error(w, http.StatusBadRequest, "name, email, and password are required")
		return
	}
	u, err := h.store.Register(req.Name, req.Email, req.Password)
	if errors.Is(err, pizzastore.ErrEmailTaken) {
		twincore.Error(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.issue(w, http.StatusOK, u)
}

// Login handles PUT /api/auth.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	u, err := h.store.Authenticate(req.Email, req.Password)
	if err != nil {
		twincore.Error(w, http.StatusNotFound, err.Error())
		return
	}
	h.issue(w, http.StatusOK, u)
}

// Logout handles DELETE /api/auth.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	h.store.RevokeToken(c.token)
	twincore.JSON(w, http.StatusOK, map[string]string{"message": "logout successful"})
}

// GetMe handles GET /api/user/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	twincore.JSON(w, http.StatusOK, c.user.Public())
}

// UpdateUser handles PUT /api/user/{userId}. Users may update themselves;
// admins may update anyone. A fresh token is issued with the new claims.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	c, _ := callerFrom(r.Context())
	if c.user.ID != id && !c.user.HasRole(pizzastore.RoleAdmin) {
		twincore.Error(w, http.StatusForbidden, "unauthorized")
		return
	}
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	u, err := h.store.UpdateUser(id, req.Name, req.Email, req.Password)
	switch {
	case errors.Is(err, pizzastore.ErrNotFound):
		twincore.Error(w, http.StatusNotFound, "unknown user")
		return
	case errors.Is(err, pizzastore.ErrEmailTaken):
		twincore.Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.issue(w, http.StatusOK, u)
}
