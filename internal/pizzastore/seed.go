package pizzastore

// Default accounts. The passwords are the ones the JWT Pizza front end
// tests log in with.
var seedUsers = []User{
	{ID: 1, Name: "常用名字", Email: "a@jwt.com", Password: "admin", Roles: []Role{{Role: RoleAdmin}}},
	{ID: 2, Name: "pizza franchisee", Email: "f@jwt.com", Password: "franchisee", Roles: []Role{{Role: RoleDiner}, {Role: RoleFranchisee, ObjectID: 1}}},
	{ID: 3, Name: "Kai Chen", Email: "d@jwt.com", Password: "a", Roles: []Role{{Role: RoleDiner}}},
	{ID: 4, Name: "John Doe", Email: "johndoe@test.com", Password: "Password123", Roles: []Role{{Role: RoleDiner}}},
}

var seedMenu = []MenuItem{
	{ID: 1, Title: "Veggie", Image: "pizza1.png", Price: 0.0038, Description: "A garden of delight"},
	{ID: 2, Title: "Pepperoni", Image: "pizza2.png", Price: 0.0042, Description: "Spicy treat"},
	{ID: 3, Title: "Margarita", Image: "pizza3.png", Price: 0.0042, Description: "Essential classic"},
	{ID: 4, Title: "Crusty", Image: "pizza4.png", Price: 0.0028, Description: "A dry mouthed favorite"},
	{ID: 5, Title: "Charred Leopard", Image: "pizza5.png", Price: 0.0099, Description: "For those with a darker side"},
}

var seedFranchises = []Franchise{
	{ID: 1, Name: "pizzaPocket", Admins: []int64{2}},
	{ID: 2, Name: "LotaPizza", Admins: []int64{}},
	{ID: 3, Name: "PizzaCorp", Admins: []int64{}},
	{ID: 4, Name: "topSpot", Admins: []int64{}},
}

var seedStores = []Store{
	{ID: 1, FranchiseID: 1, Name: "SLC"},
	{ID: 4, FranchiseID: 2, Name: "Lehi"},
	{ID: 5, FranchiseID: 2, Name: "Springville"},
	{ID: 6, FranchiseID: 2, Name: "American Fork"},
	{ID: 7, FranchiseID: 3, Name: "Spanish Fork"},
}

func (s *MemoryStore) seed() {
	for _, u := range seedUsers {
		u.Roles = append([]Role(nil), u.Roles...)
		s.Users.Put(u.ID, u)
	}
	for _, m := range seedMenu {
		s.Menu.Put(m.ID, m)
	}
	for _, f := range seedFranchises {
		f.Admins = append([]int64{}, f.Admins...)
		s.Franchises.Put(f.ID, f)
	}
	for _, st := range seedStores {
		s.Stores.Put(st.ID, st)
	}
}
