package models

// All lists every table model, in dependency order. Used by AutoMigrate in
// development and tests; production schema comes from the SQL migrations.
func All() []any {
	return []any{
		&User{},
		&Plan{},
		&Subscription{},
		&Invoice{},
		&Payment{},
		&Language{},
		&CodeExecution{},
		&SubscriptionLog{},
		&PaymentNotificationLog{},
		&SubscriptionDailySnapshot{},
	}
}
