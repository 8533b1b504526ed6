package pizzaapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzastore"
	"github.com/wondertwin-ai/pizza-e2e/pkg/store"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

const ordersPerPage = 10

// orderRequest is the JSON body for POST /api/order.
type orderRequest struct {
	FranchiseID pizzastore.ID          `json:"franchiseId"`
	StoreID     pizzastore.ID          `json:"storeId"`
	Items       []pizzastore.OrderItem `json:"items"`
}

// GetMenu handles GET /api/order/menu.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.store.Menu.List())
}

// AddMenuItem handles PUT /api/order/menu and returns the whole menu.
func (h *Handler) AddMenuItem(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	if !c.user.HasRole(pizzastore.RoleAdmin) {
		twincore.Error(w, http.StatusForbidden, "unable to add menu item")
		return
	}
	var item pizzastore.MenuItem
	if !decode(w, r, &item) {
		return
	}
	h.store.Menu.Insert(func(id int64) pizzastore.MenuItem {
		item.ID = id
		return item
	})
	twincore.JSON(w, http.StatusOK, h.store.Menu.List())
}

// ListOrders handles GET /api/order?page=N.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	p := store.Paginate(h.store.OrdersOf(c.user.ID), page-1, ordersPerPage)
	orders := p.Rows
	if orders == nil {
		orders = []pizzastore.Order{}
	}
	twincore.JSON(w, http.StatusOK, map[string]any{
		"dinerId": c.user.ID,
		"orders":  orders,
		"page":    page,
		"more":    p.More,
	})
}

// CreateOrder handles POST /api/order. The response carries the order and
// the factory's signed receipt.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	var req orderRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		twincore.Error(w, http.StatusBadRequest, "order has no items")
		return
	}
	order, err := h.store.PlaceOrder(c.user.ID, req.FranchiseID, req.StoreID, req.Items)
	if errors.Is(err, pizzastore.ErrNotFound) {
		twincore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	receipt, err := h.jwtMgr.SignOrder(c.user, order)
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, "Failed to fulfill order at factory")
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{"order": order, "jwt": receipt})
}

// VerifyOrder handles POST /api/order/verify.
func (h *Handler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JWT string `json:"jwt"`
	}
	if !decode(w, r, &req) {
		return
	}
	claims, err := h.jwtMgr.ParseOrder(req.JWT)
	if err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid")
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{"message": "valid", "payload": claims})
}
