package domain

import "time"

const EventTypeEntryAppended = "ledger_entry_appended"

// AuditEvent is the message published for every committed ledger entry.
type AuditEvent struct {
	Service    string    `json:"service"`
	EventType  string    `json:"event_type"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Entry      Entry     `json:"entry"`
}
