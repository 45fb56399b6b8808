package models

// All lists every persisted model, in dependency order, for auto-migration.
func All() []any {
	return []any{
		&User{},
		&PaymentCustomer{},
		&ShippingAddress{},
		&Shop{},
		&Product{},
		&ParameterSet{},
		&Experience{},
		&SessionTicket{},
		&OrderingItem{},
		&ExperienceOrderManagement{},
		&PaymentTransaction{},
		&OrderGroup{},
		&Order{},
		&OrderDetailItem{},
		&PaymentTransfer{},
		&PayoutTransaction{},
		&CoinActionQueue{},
		&AppSetting{},
		&OutboxEvent{},
	}
}
