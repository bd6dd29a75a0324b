package models

// All lists every persisted model in dependency order. Used by sqlite bootstrapping and tests.
func All() []any {
	return []any{
		&Event{},
		&TicketType{},
		&Category{},
		&Candidate{},
		&Purchase{},
		&Ticket{},
		&Setting{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
