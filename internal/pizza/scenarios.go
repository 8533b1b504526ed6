package pizza

import (
	"net/http"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/scenario"
)

// Locators shared by the built-in scenarios.
var (
	heading     = browser.ByRole("heading", "")
	subheading  = browser.CSS("h2")
	mainArea    = browser.ByRole("main", "")
	globalNav   = browser.ByLabel("Global")
	navbar      = browser.CSS("#navbar-dark")
	emailBox    = browser.ByPlaceholder("Email address")
	passwordBox = browser.ByPlaceholder("Password")
	nameBox     = browser.ByPlaceholder("Full name")

	homeLink     = browser.ByRole("link", "home")
	loginLink    = browser.ByRole("link", "Login")
	registerLink = browser.ByRole("link", "Register")
	logoutLink   = browser.ByRole("link", "Logout")
	adminLink    = browser.ByRole("link", "Admin")
	aboutLink    = browser.ByRole("link", "About")
	historyLink  = browser.ByRole("link", "History")
	footerLink   = browser.ByRole("link", "Franchise").In(browser.ByRole("contentinfo", ""))

	loginButton    = browser.ByRole("button", "Login")
	registerButton = browser.ByRole("button", "Register")
)

const homeHeading = "The web's best pizza"

// login fills the login form and submits it.
func login(email, password string) []scenario.Action {
	return []scenario.Action{
		scenario.Click(emailBox),
		scenario.Fill(emailBox, email),
		scenario.Click(passwordBox),
		scenario.Fill(passwordBox, password),
		scenario.Click(loginButton),
	}
}

func actions(groups ...[]scenario.Action) []scenario.Action {
	var out []scenario.Action
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func backHome() []scenario.Action {
	return []scenario.Action{
		scenario.Click(homeLink),
		scenario.ExpectText(heading, homeHeading),
	}
}

// Scenarios returns the built-in suite. Every call builds fresh values.
func Scenarios() []*scenario.Scenario {
	return []*scenario.Scenario{
		HomePage(),
		PurchaseWithLogin(),
		Logout(),
		RegisterAndLogin(),
		PageNotFound(),
		StaticPages(),
		DinerDashboard(),
		Docs(),
		AdminDashboard(),
	}
}

// HomePage checks the document title.
func HomePage() *scenario.Scenario {
	return &scenario.Scenario{
		Name:      "home page",
		Tags:      []string{"smoke"},
		RouteSets: []string{Twin},
		Actions: []scenario.Action{
			scenario.Goto("/"),
			scenario.ExpectTitle("JWT Pizza"),
		},
	}
}

func purchaseActions() []scenario.Action {
	return []scenario.Action{
		scenario.Goto("/"),
		scenario.Click(browser.ByRole("button", "Order now")),
		scenario.ExpectText(subheading, "Awesome is a click away"),
		scenario.Select(browser.ByRole("combobox", ""), "4"),
		scenario.Click(browser.ByRole("link", "Image Description Veggie A")),
		scenario.Click(browser.ByRole("link", "Image Description Pepperoni")),
		scenario.ExpectText(browser.CSS("form"), "Selected pizzas: 2"),
		scenario.Click(browser.ByRole("button", "Checkout")),
		scenario.Click(emailBox),
		scenario.Fill(emailBox, "d@jwt.com"),
		scenario.Press(emailBox, "Tab"),
		scenario.Fill(passwordBox, "a"),
		scenario.Click(loginButton),
		scenario.ExpectText(mainArea, "Send me those 2 pizzas right now!"),
		scenario.ExpectText(browser.CSS("tbody"), "Veggie"),
		scenario.ExpectText(browser.CSS("tbody"), "Pepperoni"),
		scenario.ExpectText(browser.CSS("tfoot"), "0.008 ₿"),
		scenario.Click(browser.ByRole("button", "Pay now")),
	}
}

// PurchaseWithLogin orders two pizzas against mocked endpoints. The mocks
// assert the login and order request bodies.
func PurchaseWithLogin() *scenario.Scenario {
	return &scenario.Scenario{
		Name:        "purchase with login",
		Description: "order a Veggie and a Pepperoni from Lehi, logging in at checkout",
		Tags:        []string{"mocks"},
		RouteSets:   []string{Mocks},
		Actions: append(purchaseActions(),
			scenario.ExpectVisible(browser.ByText("0.008")),
		),
	}
}

// Logout buys pizzas like PurchaseWithLogin, then logs out. The inline
// auth route answers both login and logout and shadows the one in Mocks.
func Logout() *scenario.Scenario {
	return &scenario.Scenario{
		Name:      "logout",
		Tags:      []string{"mocks"},
		RouteSets: []string{Mocks},
		Routes: []scenario.RouteSpec{{
			Pattern: AuthPattern,
			ByMethod: map[string]scenario.Reply{
				http.MethodPut:    {ExpectBody: LoginReq, Body: LoginRes},
				http.MethodDelete: {Body: LogoutRes},
			},
		}},
		Actions: append(purchaseActions(),
			scenario.ExpectText(globalNav, "KC"),
			scenario.Click(logoutLink),
			scenario.ExpectText(navbar, "Register"),
			scenario.ExpectHidden(globalNav),
		),
	}
}

// RegisterAndLogin registers a fresh account, logs out, and logs back in.
func RegisterAndLogin() *scenario.Scenario {
	const email = "JohnDoe{{random}}@test.com"
	return &scenario.Scenario{
		Name:      "register a user and login",
		Tags:      []string{"twin"},
		RouteSets: []string{Twin},
		Actions: actions(
			[]scenario.Action{
				scenario.Goto("/"),
				scenario.Click(registerLink),
				scenario.Click(nameBox),
				scenario.Fill(nameBox, "John Doe"),
				scenario.Click(emailBox),
				scenario.Fill(emailBox, email),
				scenario.Click(passwordBox),
				scenario.Fill(passwordBox, "Password123"),
				scenario.Click(registerButton),
				scenario.ExpectText(heading, homeHeading),
				scenario.ExpectText(globalNav, "JD"),
				scenario.Click(logoutLink),
				scenario.ExpectText(navbar, "Register"),
				scenario.Click(loginLink),
			},
			login(email, "Password123"),
			[]scenario.Action{
				scenario.ExpectText(globalNav, "JD"),
				scenario.ExpectText(heading, homeHeading),
			},
		),
	}
}

// PageNotFound visits an unknown page and returns home.
func PageNotFound() *scenario.Scenario {
	return &scenario.Scenario{
		Name:      "page not found",
		RouteSets: []string{Twin},
		Actions: actions(
			[]scenario.Action{
				scenario.Goto("/thispagedoesnotexist"),
				scenario.ExpectText(mainArea, "It looks like we have dropped a pizza on the floor. Please try another page."),
				scenario.ExpectText(heading, "Oops"),
			},
			backHome(),
		),
	}
}

// StaticPages walks the franchise, about, and history pages.
func StaticPages() *scenario.Scenario {
	return &scenario.Scenario{
		Name:      "franchise, about, and history pages",
		RouteSets: []string{Twin},
		Actions: actions(
			[]scenario.Action{
				scenario.Goto("/"),
				scenario.Click(footerLink),
				scenario.ExpectText(mainArea, "So you want a piece of the pie?"),
				scenario.Click(aboutLink),
				scenario.ExpectText(mainArea, "The secret sauce"),
				scenario.Click(historyLink),
				scenario.ExpectText(heading, "Mama Rucci, my my"),
			},
			backHome(),
		),
	}
}

// DinerDashboard logs a seeded diner in and opens their dashboard.
func DinerDashboard() *scenario.Scenario {
	return &scenario.Scenario{
		Name:      "diner dashboard",
		Tags:      []string{"twin"},
		RouteSets: []string{Twin},
		Actions: actions(
			[]scenario.Action{
				scenario.Goto("/"),
				scenario.ExpectText(heading, homeHeading),
				scenario.Click(loginLink),
			},
			login("johndoe@test.com", "Password123"),
			[]scenario.Action{
				scenario.ExpectText(globalNav, "JD"),
				scenario.Goto("/diner-dashboard"),
				scenario.ExpectText(heading, "Your pizza kitchen"),
				scenario.Click(browser.ByRole("link", "Buy one")),
				scenario.ExpectText(subheading, "Awesome is a click away"),
				scenario.Click(homeLink),
			},
		),
	}
}

// Docs opens the API docs page.
func Docs() *scenario.Scenario {
	return &scenario.Scenario{
		Name:      "docs",
		RouteSets: []string{Twin},
		Actions: actions(
			[]scenario.Action{
				scenario.Goto("/docs"),
				scenario.ExpectText(mainArea, "JWT Pizza API"),
			},
			backHome(),
		),
	}
}

// AdminDashboard creates and closes a franchise as the seeded admin.
func AdminDashboard() *scenario.Scenario {
	franchiseName := browser.ByPlaceholder("franchise name")
	adminEmail := browser.ByPlaceholder("franchisee admin email")
	row := browser.ByRole("row", "test franchise 常用名字 Close")

	return &scenario.Scenario{
		Name:      "admin dashboard",
		Tags:      []string{"twin"},
		RouteSets: []string{Twin},
		Actions: actions(
			[]scenario.Action{
				scenario.Goto("/"),
				scenario.ExpectText(heading, homeHeading),
				scenario.Click(loginLink),
			},
			login("a@jwt.com", "admin"),
			[]scenario.Action{
				scenario.ExpectText(globalNav, "常"),
				scenario.Click(adminLink),
				scenario.ExpectText(heading, "Mama Ricci's kitchen"),
				scenario.Click(browser.ByRole("button", "Add Franchise")),
				scenario.Click(franchiseName),
				scenario.Fill(franchiseName, "test franchise"),
				scenario.Click(adminEmail),
				scenario.Fill(adminEmail, "a@jwt.com"),
				scenario.Click(browser.ByRole("button", "Create")),
				scenario.ExpectText(browser.ByRole("table", ""), "test franchise"),
				scenario.Click(browser.ByRole("button", "").In(row)),
				scenario.ExpectText(heading, "Sorry to see you go"),
				scenario.Click(browser.ByRole("button", "Close")),
				scenario.ExpectNoText(mainArea, "test franchise"),
			},
			backHome(),
		),
	}
}
