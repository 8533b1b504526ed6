package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helper: a tiny JWT-Pizza-shaped server
// ---------------------------------------------------------------------------

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/order/menu", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "title": "Veggie", "price": 0.0038},
			{"id": 2, "title": "Pepperoni", "price": 0.0042},
		})
	})

	mux.HandleFunc("PUT /api/auth", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"user":  map[string]any{"email": body["email"], "name": "Kai Chen"},
			"token": "abcdef",
		})
	})

	mux.HandleFunc("DELETE /api/auth", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer abcdef" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message": "logout successful"})
	})

	mux.HandleFunc("POST /admin/fault/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"endpoint": r.URL.Path})
	})

	mux.HandleFunc("POST /admin/time/advance", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})

	return httptest.NewServer(mux)
}

// ---------------------------------------------------------------------------
// TwinClient
// ---------------------------------------------------------------------------

func TestGetAndDecode(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewTwinClient(t, srv)

	var menu []map[string]any
	c.Get("/api/order/menu").AssertStatus(http.StatusOK).JSON(&menu)
	require.Len(t, menu, 2)
	assert.Equal(t, "Pepperoni", menu[1]["title"])
}

func TestPutSendsJSONAndMatches(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewTwinClient(t, srv)

	c.Put("/api/auth", map[string]string{"email": "d@jwt.com", "password": "a"}).
		AssertStatus(http.StatusOK).
		AssertMatches(map[string]any{"user": map[string]any{"name": "Kai Chen"}, "token": "abcdef"})
}

func TestWithTokenSetsBearer(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewTwinClient(t, srv)

	c.Delete("/api/auth").AssertStatus(http.StatusUnauthorized)
	c.WithToken("abcdef").Delete("/api/auth").
		AssertStatus(http.StatusOK).
		AssertBodyContains("logout successful")

	assert.Empty(t, c.token, "WithToken must not mutate the original client")
}

func TestNewTwinClientURLTrimsSlash(t *testing.T) {
	c := NewTwinClientURL(t, "http://localhost:9000/")
	assert.Equal(t, "http://localhost:9000", c.BaseURL)
}

// ---------------------------------------------------------------------------
// AdminClient
// ---------------------------------------------------------------------------

func TestAdminClientPaths(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	ac := NewAdminClient(NewTwinClient(t, srv))

	body := ac.InjectFault("/api/order", map[string]int{"status_code": 500}).JSONMap()
	assert.Equal(t, "/admin/fault/api/order", body["endpoint"])

	body = ac.AdvanceTime("2h").JSONMap()
	assert.Equal(t, "2h", body["duration"])
}
