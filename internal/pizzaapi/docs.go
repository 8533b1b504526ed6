package pizzaapi

import (
	"net/http"

	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

// Version is reported by GET /api/docs.
const Version = "20240518.154317"

type endpoint struct {
	Method       string `json:"method"`
	Path         string `json:"path"`
	RequiresAuth bool   `json:"requiresAuth"`
	Description  string `json:"description"`
}

var endpoints = []endpoint{
	{"POST", "/api/auth", false, "Register a new user"},
	{"PUT", "/api/auth", false, "Login existing user"},
	{"DELETE", "/api/auth", true, "Logout a user"},
	{"GET", "/api/user/me", true, "Get authenticated user"},
	{"PUT", "/api/user/:userId", true, "Update user"},
	{"GET", "/api/order/menu", false, "Get the pizza menu"},
	{"PUT", "/api/order/menu", true, "Add an item to the menu"},
	{"GET", "/api/order", true, "Get the orders for the authenticated user"},
	{"POST", "/api/order", true, "Create a order for the authenticated user"},
	{"POST", "/api/order/verify", false, "Verify a pizza receipt"},
	{"GET", "/api/franchise", false, "List all the franchises"},
	{"GET", "/api/franchise/:userId", true, "List a user's franchises"},
	{"POST", "/api/franchise", true, "Create a new franchise"},
	{"DELETE", "/api/franchise/:franchiseId", true, "Delete a franchise"},
	{"POST", "/api/franchise/:franchiseId/store", true, "Create a new franchise store"},
	{"DELETE", "/api/franchise/:franchiseId/store/:storeId", true, "Delete a store"},
}

// GetDocs handles GET /api/docs.
func (h *Handler) GetDocs(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]any{
		"message":   "welcome to JWT Pizza API",
		"version":   Version,
		"endpoints": endpoints,
		"config": map[string]string{
			"factory": "in-process",
			"db":      "memory",
		},
	})
}
