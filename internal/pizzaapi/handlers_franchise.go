package pizzaapi

import (
	"errors"
	"net/http"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzastore"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

type adminView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type storeView struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	TotalRevenue *float64 `json:"totalRevenue,omitempty"`
}

type franchiseView struct {
	ID     int64       `json:"id"`
	Name   string      `json:"name"`
	Admins []adminView `json:"admins,omitempty"`
	Stores []storeView `json:"stores"`
}

// view renders a franchise. detailed adds admins and store revenue.
func (h *Handler) view(f pizzastore.Franchise, detailed bool) franchiseView {
	v := franchiseView{ID: f.ID, Name: f.Name, Stores: []storeView{}}
	for _, st := range h.store.StoresOf(f.ID) {
		sv := storeView{ID: st.ID, Name: st.Name}
		if detailed {
			rev := h.store.Revenue(st.ID)
			sv.TotalRevenue = &rev
		}
		v.Stores = append(v.Stores, sv)
	}
	if detailed {
		v.Admins = []adminView{}
		for _, id := range f.Admins {
			if u, ok := h.store.Users.Get(id); ok {
				v.Admins = append(v.Admins, adminView{ID: u.ID, Name: u.Name, Email: u.Email})
			}
		}
	}
	return v
}

// canManage reports whether u may change franchise id.
func canManage(u pizzastore.User, id int64) bool {
	if u.HasRole(pizzastore.RoleAdmin) {
		return true
	}
	for _, r := range u.Roles {
		if r.Role == pizzastore.RoleFranchisee && r.ObjectID == id {
			return true
		}
	}
	return false
}

// ListFranchises handles GET /api/franchise. Admins also see franchise
// admins and revenue.
func (h *Handler) ListFranchises(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r.Context())
	detailed := ok && c.user.HasRole(pizzastore.RoleAdmin)
	out := []franchiseView{}
	for _, f := range h.store.Franchises.List() {
		out = append(out, h.view(f, detailed))
	}
	twincore.JSON(w, http.StatusOK, out)
}

// ListUserFranchises handles GET /api/franchise/{id}, where id is a user.
func (h *Handler) ListUserFranchises(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, _ := callerFrom(r.Context())
	out := []franchiseView{}
	if c.user.ID == id || c.user.HasRole(pizzastore.RoleAdmin) {
		for _, f := range h.store.FranchisesOf(id) {
			out = append(out, h.view(f, true))
		}
	}
	twincore.JSON(w, http.StatusOK, out)
}

// createFranchiseRequest is the JSON body for POST /api/franchise.
type createFranchiseRequest struct {
	Name   string `json:"name"`
	Admins []struct {
		Email string `json:"email"`
	} `json:"admins"`
}

// CreateFranchise handles POST /api/franchise.
func (h *Handler) CreateFranchise(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	if !c.user.HasRole(pizzastore.RoleAdmin) {
		twincore.Error(w, http.StatusForbidden, "unable to create a franchise")
		return
	}
	var req createFranchiseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		twincore.Error(w, http.StatusBadRequest, "franchise name is required")
		return
	}
	emails := make([]string, len(req.Admins))
	for i, a := range req.Admins {
		emails[i] = a.Email
	}
	f, err := h.store.CreateFranchise(req.Name, emails)
	if errors.Is(err, pizzastore.ErrNotFound) {
		twincore.Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, h.view(f, true))
}

// DeleteFranchise handles DELETE /api/franchise/{id}.
func (h *Handler) DeleteFranchise(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, _ := callerFrom(r.Context())
	if !c.user.HasRole(pizzastore.RoleAdmin) {
		twincore.Error(w, http.StatusForbidden, "unable to delete a franchise")
		return
	}
	if err := h.store.DeleteFranchise(id); err != nil {
		twincore.Error(w, http.StatusNotFound, "unknown franchise")
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]string{"message": "franchise deleted"})
}

// CreateStore handles POST /api/franchise/{id}/store.
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, _ := callerFrom(r.Context())
	if !canManage(c.user, id) {
		twincore.Error(w, http.StatusForbidden, "unable to create a store")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		twincore.Error(w, http.StatusBadRequest, "store name is required")
		return
	}
	st, err := h.store.CreateStore(id, req.Name)
	if err != nil {
		twincore.Error(w, http.StatusNotFound, "unknown franchise")
		return
	}
	twincore.JSON(w, http.StatusOK, st)
}

// DeleteStore handles DELETE /api/franchise/{id}/store/{storeId}.
func (h *Handler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	storeID, ok := pathID(w, r, "storeId")
	if !ok {
		return
	}
	c, _ := callerFrom(r.Context())
	if !canManage(c.user, id) {
		twincore.Error(w, http.StatusForbidden, "unable to delete a store")
		return
	}
	if err := h.store.DeleteStore(id, storeID); err != nil {
		twincore.Error(w, http.StatusNotFound, "unknown store")
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]string{"message": "store deleted"})
}
