package pizza

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/browser/browsertest"
)

var (
	orderNow    = browser.ByRole("button", "Order now")
	checkout    = browser.ByRole("button", "Checkout")
	payNow      = browser.ByRole("button", "Pay now")
	storePicker = browser.ByRole("combobox", "")
	buyOne      = browser.ByRole("link", "Buy one")
	addButton   = browser.ByRole("button", "Add Franchise")
	createBtn   = browser.ByRole("button", "Create")
	closeBtn    = browser.ByRole("button", "Close")
	nameField   = browser.ByPlaceholder("franchise name")
	adminField  = browser.ByPlaceholder("franchisee admin email")
)

type menuItem struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type franchise struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Admins []struct {
		Name string `json:"name"`
	} `json:"admins"`
	Stores []struct {
		ID int `json:"id"`
	} `json:"stores"`
}

type authResult struct {
	User struct {
		Name  string `json:"name"`
		Roles []struct {
			Role string `json:"role"`
		} `json:"roles"`
	} `json:"user"`
	Token string `json:"token"`
}

// app is a scripted stand-in for the JWT Pizza front end. It keeps its
// state across navigations the way the real one keeps it in local storage.
type app struct {
	name    string
	admin   bool
	token   string
	menu    []menuItem
	stores  map[string]int
	storeID string
	cart    []menuItem
	next    string
	closing int

	// orderSkew is added to the last pizza's price in the order request
	// only, like a front end that displays one price and sends another.
	orderSkew float64
}

func newApp() *app { return &app{stores: map[string]int{}} }

func initials(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(name) {
		b.WriteRune([]rune(w)[0])
	}
	return b.String()
}

func (a *app) total() float64 {
	var sum float64
	for _, it := range a.cart {
		sum += it.Price
	}
	return sum
}

func navigate(path string) browsertest.Reaction {
	return func(ctx context.Context, p *browsertest.Page) error {
		return p.Goto(ctx, path)
	}
}

func (a *app) install(p *browsertest.Page) {
	p.SetTitle("JWT Pizza")
	p.OnGoto(func(ctx context.Context, p *browsertest.Page, raw string) error {
		u, err := url.Parse(raw)
		if err != nil {
			return err
		}
		return a.render(ctx, p, u.Path)
	})

	p.On("click", homeLink, navigate("/"))
	p.On("click", loginLink, navigate("/login"))
	p.On("click", registerLink, navigate("/register"))
	p.On("click", adminLink, navigate("/admin-dashboard"))
	p.On("click", aboutLink, navigate("/about"))
	p.On("click", historyLink, navigate("/history"))
	p.On("click", footerLink, navigate("/franchise-dashboard"))
	p.On("click", orderNow, navigate("/menu"))
	p.On("click", buyOne, navigate("/menu"))
	p.On("click", addButton, navigate("/create-franchise"))

	p.On("select", storePicker, func(ctx context.Context, p *browsertest.Page) error {
		a.storeID = p.Value(storePicker)
		return nil
	})
	p.On("click", checkout, func(ctx context.Context, p *browsertest.Page) error {
		if a.token == "" {
			a.next = "/payment"
			return p.Goto(ctx, "/login")
		}
		return p.Goto(ctx, "/payment")
	})
	p.On("click", loginButton, func(ctx context.Context, p *browsertest.Page) error {
		body := map[string]string{"email": p.Value(emailBox), "password": p.Value(passwordBox)}
		if err := a.authenticate(ctx, p, "PUT", body); err != nil {
			return err
		}
		next := a.next
		if next == "" {
			next = "/"
		}
		a.next = ""
		return p.Goto(ctx, next)
	})
	p.On("click", registerButton, func(ctx context.Context, p *browsertest.Page) error {
		body := map[string]string{"name": p.Value(nameBox), "email": p.Value(emailBox), "password": p.Value(passwordBox)}
		if err := a.authenticate(ctx, p, "POST", body); err != nil {
			return err
		}
		return p.Goto(ctx, "/")
	})
	p.On("click", logoutLink, func(ctx context.Context, p *browsertest.Page) error {
		if err := p.FetchJSON(ctx, "DELETE", "/api/auth", nil, nil); err != nil {
			return err
		}
		a.token, a.name, a.admin = "", "", false
		p.SetHeader("Authorization", "")
		return p.Goto(ctx, "/")
	})
	p.On("click", payNow, func(ctx context.Context, p *browsertest.Page) error {
		items := make([]any, len(a.cart))
		for i, it := range a.cart {
			price := it.Price
			if i == len(a.cart)-1 {
				price += a.orderSkew
			}
			items[i] = map[string]any{"menuId": it.ID, "description": it.Title, "price": price}
		}
		body := map[string]any{"items": items, "storeId": a.storeID, "franchiseId": a.stores[a.storeID]}
		if err := p.FetchJSON(ctx, "POST", "/api/order", body, nil); err != nil {
			return err
		}
		return p.Goto(ctx, "/delivery")
	})
	p.On("click", createBtn, func(ctx context.Context, p *browsertest.Page) error {
		body := map[string]any{
			"name":   p.Value(nameField),
			"admins": []any{map[string]any{"email": p.Value(adminField)}},
		}
		if err := p.FetchJSON(ctx, "POST", "/api/franchise", body, nil); err != nil {
			return err
		}
		return p.Goto(ctx, "/admin-dashboard")
	})
	p.On("click", closeBtn, func(ctx context.Context, p *browsertest.Page) error {
		if err := p.FetchJSON(ctx, "DELETE", fmt.Sprintf("/api/franchise/%d", a.closing), nil, nil); err != nil {
			return err
		}
		return p.Goto(ctx, "/admin-dashboard")
	})
}

func (a *app) authenticate(ctx context.Context, p *browsertest.Page, method string, body any) error {
	var res authResult
	if err := p.FetchJSON(ctx, method, "/api/auth", body, &res); err != nil {
		return err
	}
	a.token, a.name = res.Token, res.User.Name
	a.admin = false
	for _, r := range res.User.Roles {
		if r.Role == "admin" {
			a.admin = true
		}
	}
	p.SetHeader("Authorization", "Bearer "+a.token)
	return nil
}

func (a *app) nav(p *browsertest.Page) {
	p.Show(homeLink, "home")
	p.Show(footerLink, "Franchise")
	p.Show(aboutLink, "About")
	p.Show(historyLink, "History")
	if a.token == "" {
		p.Show(loginLink, "Login")
		p.Show(registerLink, "Register")
		p.Show(navbar, "Login Register")
		return
	}
	p.Show(globalNav, initials(a.name))
	p.Show(logoutLink, "Logout")
	p.Show(navbar, initials(a.name)+" Logout")
	if a.admin {
		p.Show(adminLink, "Admin")
	}
}

// menuLinks shows one link per pizza under every word prefix of its
// accessible name, the way Playwright matches names by substring.
func (a *app) menuLinks(p *browsertest.Page) {
	for _, item := range a.menu {
		full := "Image Description " + item.Title + " " + item.Description
		words := strings.Fields(full)
		for n := 3; n <= len(words); n++ {
			l := browser.ByRole("link", strings.Join(words[:n], " "))
			p.Show(l, full)
			p.On("click", l, func(ctx context.Context, p *browsertest.Page) error {
				a.cart = append(a.cart, item)
				p.Show(browser.CSS("form"), fmt.Sprintf("Selected pizzas: %d", len(a.cart)))
				return nil
			})
		}
	}
}

func (a *app) render(ctx context.Context, p *browsertest.Page, path string) error {
	p.Clear()
	a.nav(p)

	switch path {
	case "/":
		p.Show(heading, homeHeading)
		p.Show(orderNow, "Order now")
	case "/menu":
		if err := p.FetchJSON(ctx, "GET", "/api/order/menu", nil, &a.menu); err != nil {
			return err
		}
		var list []franchise
		if err := p.FetchJSON(ctx, "GET", "/api/franchise", nil, &list); err != nil {
			return err
		}
		for _, f := range list {
			for _, st := range f.Stores {
				a.stores[fmt.Sprint(st.ID)] = f.ID
			}
		}
		a.cart = nil
		p.Show(subheading, "Awesome is a click away")
		p.Show(storePicker)
		p.Show(browser.CSS("form"), "Selected pizzas: 0")
		p.Show(checkout, "Checkout")
		a.menuLinks(p)
	case "/login":
		p.Show(emailBox)
		p.Show(passwordBox)
		p.Show(loginButton, "Login")
	case "/register":
		p.Show(nameBox)
		p.Show(emailBox)
		p.Show(passwordBox)
		p.Show(registerButton, "Register")
	case "/payment":
		titles := make([]string, len(a.cart))
		for i, it := range a.cart {
			titles[i] = it.Title
		}
		p.Show(mainArea, fmt.Sprintf("Send me those %d pizzas right now!", len(a.cart)))
		p.Show(browser.CSS("tbody"), titles...)
		p.Show(browser.CSS("tfoot"), fmt.Sprintf("%.3f ₿", a.total()))
		p.Show(payNow, "Pay now")
	case "/delivery":
		p.Show(mainArea, "Here is your JWT Pizza!")
		p.Show(browser.ByText(fmt.Sprintf("%.3f", a.total())), fmt.Sprintf("%.3f", a.total()))
	case "/franchise-dashboard":
		p.Show(mainArea, "So you want a piece of the pie?")
	case "/about":
		p.Show(mainArea, "The secret sauce")
	case "/history":
		p.Show(heading, "Mama Rucci, my my")
	case "/docs":
		var docs struct {
			Endpoints []struct {
				Method string `json:"method"`
				Path   string `json:"path"`
			} `json:"endpoints"`
		}
		if err := p.FetchJSON(ctx, "GET", "/api/docs", nil, &docs); err != nil {
			return err
		}
		lines := []string{"JWT Pizza API"}
		for _, e := range docs.Endpoints {
			lines = append(lines, e.Method+" "+e.Path)
		}
		p.Show(mainArea, strings.Join(lines, "\n"))
	case "/diner-dashboard":
		if err := p.FetchJSON(ctx, "GET", "/api/order", nil, nil); err != nil {
			return err
		}
		p.Show(heading, "Your pizza kitchen")
		p.Show(buyOne, "Buy one")
	case "/admin-dashboard":
		var list []franchise
		if err := p.FetchJSON(ctx, "GET", "/api/franchise", nil, &list); err != nil {
			return err
		}
		rows := make([]string, 0, len(list))
		for _, f := range list {
			admins := make([]string, len(f.Admins))
			for i, ad := range f.Admins {
				admins[i] = ad.Name
			}
			row := strings.Join(append(append([]string{f.Name}, admins...), "Close"), " ")
			rows = append(rows, row)
			btn := browser.ByRole("button", "").In(browser.ByRole("row", row))
			p.Show(btn, "Close")
			p.On("click", btn, func(ctx context.Context, p *browsertest.Page) error {
				a.closing = f.ID
				return p.Goto(ctx, "/close-franchise")
			})
		}
		p.Show(heading, "Mama Ricci's kitchen")
		p.Show(browser.ByRole("table", ""), rows...)
		p.Show(mainArea, rows...)
		p.Show(addButton, "Add Franchise")
	case "/create-franchise":
		p.Show(nameField)
		p.Show(adminField)
		p.Show(createBtn, "Create")
	case "/close-franchise":
		p.Show(heading, "Sorry to see you go")
		p.Show(closeBtn, "Close")
	default:
		p.Show(heading, "Oops")
		p.Show(mainArea, "It looks like we have dropped a pizza on the floor. Please try another page.")
	}
	return nil
}
