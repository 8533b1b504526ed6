package pizzaapi_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzaapi"
	"github.com/wondertwin-ai/pizza-e2e/pkg/testutil"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

func setupPizza(t *testing.T) *testutil.TwinClient {
	t.Helper()
	twin, _, err := pizzaapi.NewTwin(&twincore.Config{Name: "pizza-twin-test"}, zap.NewNop(), "test-secret")
	require.NoError(t, err)
	srv := httptest.NewServer(twin)
	t.Cleanup(srv.Close)
	return testutil.NewTwinClient(t, srv)
}

// login returns a client carrying a live token for the given account.
func login(t *testing.T, tc *testutil.TwinClient, email, password string) *testutil.TwinClient {
	t.Helper()
	var res struct {
		Token string `json:"token"`
	}
	tc.Put("/api/auth", map[string]string{"email": email, "password": password}).
		AssertStatus(http.StatusOK).
		JSON(&res)
	require.NotEmpty(t, res.Token)
	return tc.WithToken(res.Token)
}

// --- Auth ---

func TestLoginReturnsUserAndToken(t *testing.T) {
	tc := setupPizza(t)
	tc.Put("/api/auth", map[string]string{"email": "d@jwt.com", "password": "a"}).
		AssertStatus(http.StatusOK).
		AssertMatches(map[string]any{
			"user": map[string]any{
				"id":    3,
				"name":  "Kai Chen",
				"email": "d@jwt.com",
				"roles": []any{map[string]any{"role": "diner"}},
			},
		})
}

func TestLoginDoesNotLeakPassword(t *testing.T) {
	tc := setupPizza(t)
	resp := tc.Put("/api/auth", map[string]string{"email": "d@jwt.com", "password": "a"})
	assert.NotContains(t, string(resp.Body), "password")
}

func TestLoginUnknownUser(t *testing.T) {
	tc := setupPizza(t)
	tc.Put("/api/auth", map[string]string{"email": "d@jwt.com", "password": "nope"}).
		AssertStatus(http.StatusNotFound).
		AssertMatches(map[string]any{"message": "unknown user"})
}

func TestRegisterThenLogin(t *testing.T) {
	tc := setupPizza(t)
	tc.Post("/api/auth", map[string]string{"name": "John Doe", "email": "jd1@test.com", "password": "Password123"}).
		AssertStatus(http.StatusOK).
		AssertMatches(map[string]any{"user": map[string]any{"name": "John Doe", "roles": []any{map[string]any{"role": "diner"}}}})

	authed := login(t, tc, "jd1@test.com", "Password123")
	authed.Get("/api/user/me").AssertStatus(http.StatusOK).AssertMatches(map[string]any{"email": "jd1@test.com"})

	tc.Post("/api/auth", map[string]string{"name": "Again", "email": "jd1@test.com", "password": "x"}).
		AssertStatus(http.StatusConflict)
	tc.Post("/api/auth", map[string]string{"email": "x@test.com"}).
		AssertStatus(http.StatusBadRequest)
}

func TestLogoutRevokesOnlyThatToken(t *testing.T) {
	tc := setupPizza(t)
	first := login(t, tc, "d@jwt.com", "a")
	second := login(t, tc, "d@jwt.com", "a")

	first.Delete("/api/auth").AssertStatus(http.StatusOK).AssertMatches(map[string]any{"message": "logout successful"})
	first.Get("/api/user/me").AssertStatus(http.StatusUnauthorized)
	first.Delete("/api/auth").AssertStatus(http.StatusUnauthorized)
	second.Get("/api/user/me").AssertStatus(http.StatusOK)
}

func TestRejectsForeignTokens(t *testing.T) {
	tc := setupPizza(t)
	other, _, err := pizzaapi.NewTwin(&twincore.Config{Name: "other"}, zap.NewNop(), "other-secret")
	require.NoError(t, err)
	srv := httptest.NewServer(other)
	defer srv.Close()

	var res struct {
		Token string `json:"token"`
	}
	testutil.NewTwinClient(t, srv).
		Put("/api/auth", map[string]string{"email": "d@jwt.com", "password": "a"}).
		AssertStatus(http.StatusOK).
		JSON(&res)

	tc.WithToken(res.Token).Get("/api/user/me").AssertStatus(http.StatusUnauthorized)
	tc.Get("/api/order").AssertStatus(http.StatusUnauthorized)
	tc.WithToken("not-a-jwt").Get("/api/order").AssertStatus(http.StatusUnauthorized)
}

func TestUpdateUser(t *testing.T) {
	tc := setupPizza(t)
	kai := login(t, tc, "d@jwt.com", "a")
	kai.Put("/api/user/3", map[string]string{"name": "Kai C"}).
		AssertStatus(http.StatusOK).
		AssertMatches(map[string]any{"user": map[string]any{"name": "Kai C", "email": "d@jwt.com"}})
	kai.Put("/api/user/1", map[string]string{"name": "pwned"}).AssertStatus(http.StatusForbidden)

	admin := login(t, tc, "a@jwt.com", "admin")
	admin.Put("/api/user/4", map[string]string{"email": "d@jwt.com"}).AssertStatus(http.StatusConflict)
	admin.Put("/api/user/99", map[string]string{"name": "x"}).AssertStatus(http.StatusNotFound)
}

// --- Orders ---

func TestMenu(t *testing.T) {
	tc := setupPizza(t)
	var menu []map[string]any
	tc.Get("/api/order/menu").AssertStatus(http.StatusOK).JSON(&menu)
	require.Len(t, menu, 5)
	assert.Equal(t, "Veggie", menu[0]["title"])
	assert.Equal(t, 0.0038, menu[0]["price"])
}

func TestAddMenuItemRequiresAdmin(t *testing.T) {
	tc := setupPizza(t)
	item := map[string]any{"title": "Student", "description": "No topping", "image": "pizza9.png", "price": 0.0001}
	login(t, tc, "d@jwt.com", "a").Put("/api/order/menu", item).AssertStatus(http.StatusForbidden)

	var menu []map[string]any
	login(t, tc, "a@jwt.com", "admin").Put("/api/order/menu", item).AssertStatus(http.StatusOK).JSON(&menu)
	require.Len(t, menu, 6)
	assert.Equal(t, "Student", menu[5]["title"])
}

func TestCreateOrderAndVerifyReceipt(t *testing.T) {
	tc := setupPizza(t)
	kai := login(t, tc, "d@jwt.com", "a")

	var res struct {
		Order map[string]any `json:"order"`
		JWT   string         `json:"jwt"`
	}
	kai.Post("/api/order", map[string]any{
		"items": []any{
			map[string]any{"menuId": 1, "description": "Veggie", "price": 0.0038},
			map[string]any{"menuId": 2, "description": "Pepperoni", "price": 0.0042},
		},
		"storeId":     "4",
		"franchiseId": 2,
	}).AssertStatus(http.StatusOK).AssertMatches(map[string]any{
		"order": map[string]any{
			"franchiseId": 2,
			"storeId":     4,
			"items": []any{
				map[string]any{"menuId": 1, "description": "Veggie", "price": 0.0038},
				map[string]any{"menuId": 2, "description": "Pepperoni", "price": 0.0042},
			},
		},
	}).JSON(&res)
	require.NotEmpty(t, res.JWT)

	tc.Post("/api/order/verify", map[string]string{"jwt": res.JWT}).
		AssertStatus(http.StatusOK).
		AssertMatches(map[string]any{"message": "valid", "payload": map[string]any{"diner": map[string]any{"id": 3}}})
	tc.Post("/api/order/verify", map[string]string{"jwt": res.JWT + "x"}).AssertStatus(http.StatusBadRequest)

	var history struct {
		DinerID int              `json:"dinerId"`
		Orders  []map[string]any `json:"orders"`
		Page    int              `json:"page"`
	}
	kai.Get("/api/order").AssertStatus(http.StatusOK).JSON(&history)
	assert.Equal(t, 3, history.DinerID)
	assert.Equal(t, 1, history.Page)
	require.Len(t, history.Orders, 1)
}

func TestCreateOrderRejectsBadStore(t *testing.T) {
	tc := setupPizza(t)
	kai := login(t, tc, "d@jwt.com", "a")
	kai.Post("/api/order", map[string]any{
		"items":       []any{map[string]any{"menuId": 1}},
		"storeId":     7,
		"franchiseId": 2,
	}).AssertStatus(http.StatusBadRequest)
	kai.Post("/api/order", map[string]any{"storeId": 4, "franchiseId": 2}).AssertStatus(http.StatusBadRequest)
}

func TestOrderHistoryEmpty(t *testing.T) {
	tc := setupPizza(t)
	login(t, tc, "johndoe@test.com", "Password123").Get("/api/order").
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"orders":[]`)
}

// --- Franchises ---

func TestListFranchisesPublic(t *testing.T) {
	tc := setupPizza(t)
	var list []map[string]any
	tc.Get("/api/franchise").AssertStatus(http.StatusOK).JSON(&list)
	require.Len(t, list, 4)
	assert.Equal(t, "LotaPizza", list[1]["name"])
	assert.Len(t, list[1]["stores"], 3)
	assert.NotContains(t, list[1], "admins")
}

func TestAdminFranchiseLifecycle(t *testing.T) {
	tc := setupPizza(t)
	admin := login(t, tc, "a@jwt.com", "admin")

	var created struct {
		ID     int `json:"id"`
		Admins []struct {
			Name string `json:"name"`
		} `json:"admins"`
	}
	admin.Post("/api/franchise", map[string]any{
		"name":   "test franchise",
		"admins": []any{map[string]any{"email": "a@jwt.com"}},
	}).AssertStatus(http.StatusOK).JSON(&created)
	assert.Equal(t, 5, created.ID)
	require.Len(t, created.Admins, 1)
	assert.Equal(t, "常用名字", created.Admins[0].Name)

	admin.Get("/api/franchise").AssertBodyContains("test franchise").AssertBodyContains("常用名字")
	admin.Get("/api/franchise/1").AssertBodyContains("test franchise")

	admin.Post("/api/franchise/5/store", map[string]string{"name": "Provo"}).
		AssertStatus(http.StatusOK).
		AssertMatches(map[string]any{"id": 8, "franchiseId": 5, "name": "Provo"})
	admin.Delete("/api/franchise/5/store/8").AssertStatus(http.StatusOK)
	admin.Delete("/api/franchise/5/store/8").AssertStatus(http.StatusNotFound)

	admin.Delete("/api/franchise/5").AssertStatus(http.StatusOK).AssertMatches(map[string]any{"message": "franchise deleted"})
	var list []map[string]any
	admin.Get("/api/franchise").JSON(&list)
	assert.Len(t, list, 4)
	admin.Delete("/api/franchise/5").AssertStatus(http.StatusNotFound)
}

func TestFranchiseeManagesOwnStores(t *testing.T) {
	tc := setupPizza(t)
	f := login(t, tc, "f@jwt.com", "franchisee")

	f.Get("/api/franchise/2").AssertStatus(http.StatusOK).AssertBodyContains("pizzaPocket")
	f.Get("/api/franchise/3").AssertStatus(http.StatusOK).AssertBodyContains("[]")
	f.Post("/api/franchise/1/store", map[string]string{"name": "Ogden"}).AssertStatus(http.StatusOK)
	f.Post("/api/franchise/2/store", map[string]string{"name": "Orem"}).AssertStatus(http.StatusForbidden)
	f.Post("/api/franchise", map[string]any{"name": "mine"}).AssertStatus(http.StatusForbidden)
	f.Delete("/api/franchise/1").AssertStatus(http.StatusForbidden)
}

func TestCreateFranchiseUnknownAdmin(t *testing.T) {
	tc := setupPizza(t)
	login(t, tc, "a@jwt.com", "admin").Post("/api/franchise", map[string]any{
		"name":   "ghost",
		"admins": []any{map[string]any{"email": "ghost@jwt.com"}},
	}).AssertStatus(http.StatusNotFound)
}

// --- Docs, admin, faults ---

func TestDocs(t *testing.T) {
	tc := setupPizza(t)
	tc.Get("/api/docs").AssertStatus(http.StatusOK).
		AssertMatches(map[string]any{"version": pizzaapi.Version}).
		AssertBodyContains("/api/franchise/:franchiseId/store")
}

func TestAdminResetRestoresSeed(t *testing.T) {
	tc := setupPizza(t)
	tc.Post("/api/auth", map[string]string{"name": "X", "email": "x@test.com", "password": "x"}).AssertStatus(http.StatusOK)

	ac := testutil.NewAdminClient(tc)
	ac.Reset().AssertStatus(http.StatusOK)
	tc.Put("/api/auth", map[string]string{"email": "x@test.com", "password": "x"}).AssertStatus(http.StatusNotFound)
	tc.Put("/api/auth", map[string]string{"email": "d@jwt.com", "password": "a"}).AssertStatus(http.StatusOK)
}

func TestInjectedFault(t *testing.T) {
	tc := setupPizza(t)
	ac := testutil.NewAdminClient(tc)
	ac.InjectFault("/api/order/menu", map[string]any{"status_code": 503, "rate": 1}).AssertStatus(http.StatusOK)
	tc.Get("/api/order/menu").AssertStatus(http.StatusServiceUnavailable)
	ac.RemoveFault("/api/order/menu").AssertStatus(http.StatusOK)
	tc.Get("/api/order/menu").AssertStatus(http.StatusOK)
}

func TestFactoryCreatesIsolatedTwins(t *testing.T) {
	newTwin := pizzaapi.Factory("", zap.NewNop())
	a, err := newTwin()
	require.NoError(t, err)
	b, err := newTwin()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"name":"A","email":"a1@test.com","password":"p"}`))
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	login := `{"email":"a1@test.com","password":"p"}`
	rec = httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/auth", strings.NewReader(login)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/auth", strings.NewReader(login)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFactorySeedFileError(t *testing.T) {
	_, err := pizzaapi.Factory("/nonexistent/seed.json", zap.NewNop())()
	assert.Error(t, err)
}
