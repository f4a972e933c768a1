package models

// All lists every persisted model, in dependency order. Tests use it to
// AutoMigrate SQLite databases; production schemas come from goose migrations.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&Product{},
		&ProductCategory{},
		&Coupon{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Review{},
		&OutboxEvent{},
	}
}
