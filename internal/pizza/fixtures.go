// Package pizza holds the built-in JWT Pizza suite: canned API payloads,
// the route sets that mock or twin the backend, and the scenarios that
// drive the front end through them.
package pizza

// MenuRes is the mocked GET /api/order/menu response.
var MenuRes = []any{
	map[string]any{
		"id":          1,
		"title":       "Veggie",
		"image":       "pizza1.png",
		"price":       0.0038,
		"description": "A garden of delight",
	},
	map[string]any{
		"id":          2,
		"title":       "Pepperoni",
		"image":       "pizza2.png",
		"price":       0.0042,
		"description": "Spicy treat",
	},
}

// FranchiseRes is the mocked GET /api/franchise response.
var FranchiseRes = []any{
	map[string]any{
		"id":   2,
		"name": "LotaPizza",
		"stores": []any{
			map[string]any{"id": 4, "name": "Lehi"},
			map[string]any{"id": 5, "name": "Springville"},
			map[string]any{"id": 6, "name": "American Fork"},
		},
	},
	map[string]any{"id": 3, "name": "PizzaCorp", "stores": []any{map[string]any{"id": 7, "name": "Spanish Fork"}}},
	map[string]any{"id": 4, "name": "topSpot", "stores": []any{}},
}

// LoginReq is the body the front end must send to log Kai Chen in.
var LoginReq = map[string]any{"email": "d@jwt.com", "password": "a"}

// LoginRes is the mocked PUT /api/auth response.
var LoginRes = map[string]any{
	"user": map[string]any{
		"id":    3,
		"name":  "Kai Chen",
		"email": "d@jwt.com",
		"roles": []any{map[string]any{"role": "diner"}},
	},
	"token": "abcdef",
}

// LogoutRes is the mocked DELETE /api/auth response.
var LogoutRes = map[string]any{"message": "logout successful"}

func orderItems() []any {
	return []any{
		map[string]any{"menuId": 1, "description": "Veggie", "price": 0.0038},
		map[string]any{"menuId": 2, "description": "Pepperoni", "price": 0.0042},
	}
}

// OrderReq is the body the front end must send to buy one Veggie and one
// Pepperoni from the Lehi store.
var OrderReq = map[string]any{
	"items":       orderItems(),
	"storeId":     "4",
	"franchiseId": 2,
}

// OrderRes is the mocked POST /api/order response.
var OrderRes = map[string]any{
	"order": map[string]any{
		"items":       orderItems(),
		"storeId":     "4",
		"franchiseId": 2,
		"id":          23,
	},
	"jwt": "eyJpYXQ",
}
