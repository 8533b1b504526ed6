package pizza

import (
	"net/http"

	"github.com/wondertwin-ai/pizza-e2e/internal/scenario"
)

// Route set names.
const (
	// Mocks answers menu, franchise, login, and order calls with the
	// canned payloads, asserting the method and body of each request.
	Mocks = "pizza-mocks"
	// Twin sends every API call to the session's backend twin.
	Twin = "pizza-twin"
)

// Glob patterns for the JWT Pizza API, valid against any host.
const (
	MenuPattern      = "*/**/api/order/menu"
	FranchisePattern = "*/**/api/franchise"
	AuthPattern      = "*/**/api/auth"
	OrderPattern     = "*/**/api/order"
	APIPattern       = "*/**/api/**"
)

// MockRoutes are the rules of the Mocks route set, in registration order.
func MockRoutes() []scenario.RouteSpec {
	return []scenario.RouteSpec{
		{Pattern: MenuPattern, ExpectMethod: http.MethodGet, Reply: scenario.Reply{Body: MenuRes}},
		{Pattern: FranchisePattern, ExpectMethod: http.MethodGet, Reply: scenario.Reply{Body: FranchiseRes}},
		{Pattern: AuthPattern, ExpectMethod: http.MethodPut, Reply: scenario.Reply{ExpectBody: LoginReq, Body: LoginRes}},
		{Pattern: OrderPattern, ExpectMethod: http.MethodPost, Reply: scenario.Reply{ExpectBody: OrderReq, Body: OrderRes}},
	}
}

// RouteSets returns the named route sets of the built-in suite.
func RouteSets() map[string]scenario.RouteSet {
	return map[string]scenario.RouteSet{
		Mocks: scenario.Specs("", MockRoutes()...),
		Twin:  scenario.Specs("", scenario.RouteSpec{Pattern: APIPattern, Reply: scenario.Reply{Use: "twin"}}),
	}
}

// Options wires the built-in route sets and, when newTwin is non-nil, the
// backend twin factory into a scenario.Runner.
func Options(newTwin func() (http.Handler, error)) []scenario.Option {
	opts := make([]scenario.Option, 0, 3)
	for name, set := range RouteSets() {
		opts = append(opts, scenario.WithRouteSet(name, set))
	}
	if newTwin != nil {
		opts = append(opts, scenario.WithTwin(newTwin))
	}
	return opts
}
