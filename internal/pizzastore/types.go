// Package pizzastore holds the state of the JWT Pizza backend twin: users,
// the menu, franchises with their stores, diner orders, and live auth tokens.
package pizzastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Role names used by the JWT Pizza service.
const (
	RoleDiner      = "diner"
	RoleFranchisee = "franchisee"
	RoleAdmin      = "admin"
)

// ID is a numeric identifier that also decodes from a JSON string. The
// front end sends store IDs straight from a <select>, so "4" and 4 are
// the same store.
type ID int64

// UnmarshalJSON accepts a JSON number or a string holding one.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n)
	return nil
}

// Role grants a user a role, optionally scoped to an object (a franchise).
type Role struct {
	Role     string `json:"role"`
	ObjectID int64  `json:"objectId,omitempty"`
}

// User is a registered account. Password is kept in the clear; this is a
// test double.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Roles    []Role `json:"roles"`
}

// Public returns the user without its password.
func (u User) Public() User {
	u.Password = ""
	if u.Roles == nil {
		u.Roles = []Role{}
	}
	return u
}

// HasRole reports whether the user holds role on any object.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

// MenuItem is one pizza on the menu.
type MenuItem struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Image       string  `json:"image"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// Franchise is a pizza franchise. Admins are user IDs.
type Franchise struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Admins []int64 `json:"admins"`
}

// Store is a franchise location.
type Store struct {
	ID          int64  `json:"id"`
	FranchiseID int64  `json:"franchiseId"`
	Name        string `json:"name"`
}

// OrderItem is a pizza within an order, priced at order time.
type OrderItem struct {
	ID          int64   `json:"id,omitempty"`
	MenuID      ID      `json:"menuId"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Order is a diner's purchase from one store.
type Order struct {
	ID          int64       `json:"id"`
	DinerID     int64       `json:"dinerId"`
	FranchiseID ID          `json:"franchiseId"`
	StoreID     ID          `json:"storeId"`
	Date        time.Time   `json:"date"`
	Items       []OrderItem `json:"items"`
}

// Total sums the item prices.
func (o Order) Total() float64 {
	var sum float64
	for _, it := range o.Items {
		sum += it.Price
	}
	return sum
}
