package pizzastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	pkgstore "github.com/wondertwin-ai/pizza-e2e/pkg/store"
)

var (
	ErrInvalidCredentials = errors.New("unknown user")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotFound           = errors.New("not found")
)

// MemoryStore holds all pizza twin state in memory.
type MemoryStore struct {
	Users      *pkgstore.Table[User]
	Menu       *pkgstore.Table[MenuItem]
	Franchises *pkgstore.Table[Franchise]
	Stores     *pkgstore.Table[Store]
	Orders     *pkgstore.Table[Order]

	Clock *pkgstore.Clock

	// mu guards tokens and serializes multi-table writes.
	mu     sync.Mutex
	tokens map[string]int64
}

// New creates a MemoryStore loaded with the default seed data.
func New() *MemoryStore {
	s := &MemoryStore{
		Users:      pkgstore.New[User](1),
		Menu:       pkgstore.New[MenuItem](1),
		Franchises: pkgstore.New[Franchise](1),
		Stores:     pkgstore.New[Store](1),
		Orders:     pkgstore.New[Order](1),
		Clock:      pkgstore.NewClock(),
		tokens:     make(map[string]int64),
	}
	s.seed()
	return s
}

// stateSnapshot is the JSON-serializable state for admin endpoints and
// seed files.
type stateSnapshot struct {
	Users      map[string]User      `json:"users"`
	Menu       map[string]MenuItem  `json:"menu"`
	Franchises map[string]Franchise `json:"franchises"`
	Stores     map[string]Store     `json:"stores"`
	Orders     map[string]Order     `json:"orders"`
	Tokens     map[string]int64     `json:"tokens,omitempty"`
}

// Snapshot returns the full state as a JSON-serializable value.
func (s *MemoryStore) Snapshot() any {
	s.mu.Lock()
	tokens := make(map[string]int64, len(s.tokens))
	for k, v := range s.tokens {
		tokens[k] = v
	}
	s.mu.Unlock()

	return stateSnapshot{
		Users:      s.Users.Snapshot(),
		Menu:       s.Menu.Snapshot(),
		Franchises: s.Franchises.Snapshot(),
		Stores:     s.Stores.Snapshot(),
		Orders:     s.Orders.Snapshot(),
		Tokens:     tokens,
	}
}

// LoadState replaces the full state from a JSON body. Tables missing from
// the body are left empty.
func (s *MemoryStore) LoadState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	loads := []struct {
		name string
		load func() error
	}{
		{"users", func() error { return s.Users.LoadSnapshot(snap.Users) }},
		{"menu", func() error { return s.Menu.LoadSnapshot(snap.Menu) }},
		{"franchises", func() error { return s.Franchises.LoadSnapshot(snap.Franchises) }},
		{"stores", func() error { return s.Stores.LoadSnapshot(snap.Stores) }},
		{"orders", func() error { return s.Orders.LoadSnapshot(snap.Orders) }},
	}
	for _, l := range loads {
		if err := l.load(); err != nil {
			return fmt.Errorf("load %s: %w", l.name, err)
		}
	}
	s.tokens = make(map[string]int64, len(snap.Tokens))
	for k, v := range snap.Tokens {
		s.tokens[k] = v
	}
	return nil
}

// Reset clears all state and reloads the default seed data.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	s.Users.Reset()
	s.Menu.Reset()
	s.Franchises.Reset()
	s.Stores.Reset()
	s.Orders.Reset()
	s.Clock.Reset()
	s.tokens = make(map[string]int64)
	s.mu.Unlock()
	s.seed()
}

// UserByEmail looks a user up by email, ignoring case.
func (s *MemoryStore) UserByEmail(email string) (User, bool) {
	return s.Users.Find(func(u User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

// Authenticate returns the user with the given credentials.
func (s *MemoryStore) Authenticate(email, password string) (User, error) {
	u, ok := s.UserByEmail(email)
	if !ok || u.Password != password {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Register creates a diner account.
func (s *MemoryStore) Register(name, email, password string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.UserByEmail(email); ok {
		return User{}, ErrEmailTaken
	}
	return s.Users.Insert(func(id int64) User {
		return User{
			ID:       id,
			Name:     name,
			Email:    email,
			Password: password,
			Roles:    []Role{{Role: RoleDiner}},
		}
	}), nil
}

// UpdateUser changes the name, email, or password of a user. Empty
// fields are left alone.
func (s *MemoryStore) UpdateUser(id int64, name, email, password string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email != "" {
		if other, ok := s.UserByEmail(email); ok && other.ID != id {
			return User{}, ErrEmailTaken
		}
	}
	u, ok := s.Users.Update(id, func(u User) User {
		if name != "" {
			u.Name = name
		}
		if email != "" {
			u.Email = email
		}
		if password != "" {
			u.Password = password
		}
		return u
	})
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// AddToken records token as a live session of userID.
func (s *MemoryStore) AddToken(token string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// TokenUser returns the user a live token belongs to.
func (s *MemoryStore) TokenUser(token string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok
}

// RevokeToken ends a session. It reports whether the token was live.
func (s *MemoryStore) RevokeToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	delete(s.tokens, token)
	return ok
}

// StoresOf lists the stores of a franchise in ID order.
func (s *MemoryStore) StoresOf(franchiseID int64) []Store {
	stores := s.Stores.Filter(func(st Store) bool { return st.FranchiseID == franchiseID })
	sort.Slice(stores, func(i, j int) bool { return stores[i].ID < stores[j].ID })
	return stores
}

// FranchisesOf lists the franchises userID administers.
func (s *MemoryStore) FranchisesOf(userID int64) []Franchise {
	return s.Franchises.Filter(func(f Franchise) bool {
		for _, a := range f.Admins {
			if a == userID {
				return true
			}
		}
		return false
	})
}

// CreateFranchise creates a franchise administered by the users with the
// given emails, granting each the franchisee role on it.
func (s *MemoryStore) CreateFranchise(name string, adminEmails []string) (Franchise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	admins := make([]User, 0, len(adminEmails))
	for _, email := range adminEmails {
		u, ok := s.UserByEmail(email)
		if !ok {
			return Franchise{}, fmt.Errorf("unknown user for franchise admin %s: %w", email, ErrNotFound)
		}
		admins = append(admins, u)
	}

	f := s.Franchises.Insert(func(id int64) Franchise {
		ids := make([]int64, len(admins))
		for i, u := range admins {
			ids[i] = u.ID
		}
		return Franchise{ID: id, Name: name, Admins: ids}
	})
	for _, u := range admins {
		s.Users.Update(u.ID, func(u User) User {
			u.Roles = append(u.Roles, Role{Role: RoleFranchisee, ObjectID: f.ID})
			return u
		})
	}
	return f, nil
}

// DeleteFranchise removes a franchise, its stores, and the franchisee
// roles that pointed at it.
func (s *MemoryStore) DeleteFranchise(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.Franchises.Get(id)
	if !ok {
		return ErrNotFound
	}
	for _, st := range s.StoresOf(id) {
		s.Stores.Delete(st.ID)
	}
	for _, admin := range f.Admins {
		s.Users.Update(admin, func(u User) User {
			roles := u.Roles[:0:0]
			for _, r := range u.Roles {
				if r.Role == RoleFranchisee && r.ObjectID == id {
					continue
				}
				roles = append(roles, r)
			}
			u.Roles = roles
			return u
		})
	}
	s.Franchises.Delete(id)
	return nil
}

// CreateStore opens a store in a franchise.
func (s *MemoryStore) CreateStore(franchiseID int64, name string) (Store, error) {
	if _, ok := s.Franchises.Get(franchiseID); !ok {
		return Store{}, ErrNotFound
	}
	return s.Stores.Insert(func(id int64) Store {
		return Store{ID: id, FranchiseID: franchiseID, Name: name}
	}), nil
}

// DeleteStore closes a store of a franchise.
func (s *MemoryStore) DeleteStore(franchiseID, storeID int64) error {
	st, ok := s.Stores.Get(storeID)
	if !ok || st.FranchiseID != franchiseID {
		return ErrNotFound
	}
	s.Stores.Delete(storeID)
	return nil
}

// Revenue sums the orders placed at a store.
func (s *MemoryStore) Revenue(storeID int64) float64 {
	var total float64
	for _, o := range s.Orders.Filter(func(o Order) bool { return int64(o.StoreID) == storeID }) {
		total += o.Total()
	}
	return total
}

// PlaceOrder records an order for dinerID. Item descriptions and prices
// come from the menu, and the store must belong to the franchise.
func (s *MemoryStore) PlaceOrder(dinerID int64, franchiseID, storeID ID, items []OrderItem) (Order, error) {
	st, ok := s.Stores.Get(int64(storeID))
	if !ok || st.FranchiseID != int64(franchiseID) {
		return Order{}, fmt.Errorf("store %d of franchise %d: %w", storeID, franchiseID, ErrNotFound)
	}
	priced := make([]OrderItem, len(items))
	for i, it := range items {
		m, ok := s.Menu.Get(int64(it.MenuID))
		if !ok {
			return Order{}, fmt.Errorf("menu item %d: %w", it.MenuID, ErrNotFound)
		}
		priced[i] = OrderItem{ID: int64(i + 1), MenuID: it.MenuID, Description: m.Title, Price: m.Price}
	}
	now := s.Clock.Now()
	return s.Orders.Insert(func(id int64) Order {
		return Order{
			ID:          id,
			DinerID:     dinerID,
			FranchiseID: franchiseID,
			StoreID:     storeID,
			Date:        now,
			Items:       priced,
		}
	}), nil
}

// OrdersOf lists a diner's orders, newest first.
func (s *MemoryStore) OrdersOf(dinerID int64) []Order {
	orders := s.Orders.Filter(func(o Order) bool { return o.DinerID == dinerID })
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders
}
