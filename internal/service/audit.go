package service

import (
	"context"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/domain"
)

const serviceName = "sentinel-ledger"

type AuditPublisher interface {
	Publish(ctx context.Context, event domain.AuditEvent) error
}

type AuditService struct {
	publisher AuditPublisher
}

func NewAuditService(publisher AuditPublisher) *AuditService {
	return &AuditService{publisher: publisher}
}

// RecordEntryAppended publishes a committed entry. A nil service or
// publisher is a no-op.
func (s *AuditService) RecordEntryAppended(ctx context.Context, entry *domain.Entry) error {
	if s == nil || s.publisher == nil || entry == nil {
		return nil
	}

	event := domain.AuditEvent{
		Service:    serviceName,
		EventType:  domain.EventTypeEntryAppended,
		TenantID:   entry.TenantID,
		OccurredAt: time.Now().UTC(),
		Entry:      *entry,
	}

	return s.publisher.Publish(ctx, event)
}
