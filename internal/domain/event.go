package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxTenantIDLength = 128
	maxActorIDLength  = 256
	maxActionLength   = 128
	maxResourceLength = 1024
)

var (
	ErrInvalidEvent   = errors.New("invalid audit event")
	ErrEmptyTenant    = fmt.Errorf("%w: tenant_id is required", ErrInvalidEvent)
	ErrEmptyActor     = fmt.Errorf("%w: actor_id is required", ErrInvalidEvent)
	ErrEmptyAction    = fmt.Errorf("%w: action is required", ErrInvalidEvent)
	ErrEmptyResource  = fmt.Errorf("%w: resource is required", ErrInvalidEvent)
	ErrFieldTooLong   = fmt.Errorf("%w: field too long", ErrInvalidEvent)
	ErrNulByte        = fmt.Errorf("%w: field contains a NUL byte", ErrInvalidEvent)
	ErrInvalidContext = fmt.Errorf("%w: context is not serializable", ErrInvalidEvent)
)

// Event is a validated actor/action/resource tuple to be appended to a
// tenant chain.
type Event struct {
	TenantID string                 `json:"tenant_id"`
	ActorID  string                 `json:"actor_id"`
	Action   string                 `json:"action"`
	Resource string                 `json:"resource"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

type AppendRequest struct {
	ActorID  string                 `json:"actor_id"`
	Action   string                 `json:"action"`
	Resource string                 `json:"resource"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

func (r AppendRequest) Event(tenantID string) Event {
	return Event{
		TenantID: tenantID,
		ActorID:  r.ActorID,
		Action:   r.Action,
		Resource: r.Resource,
		Context:  r.Context,
	}
}

func ValidateTenantID(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrEmptyTenant
	}
	if len(tenantID) > maxTenantIDLength {
		return ErrFieldTooLong
	}
	if strings.ContainsRune(tenantID, 0) {
		return ErrNulByte
	}
	return nil
}

// Validate checks the required fields. Context serializability is checked
// when the entry hash is computed.
func (e Event) Validate() error {
	if err := ValidateTenantID(e.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return ErrEmptyActor
	}
	if strings.TrimSpace(e.Action) == "" {
		return ErrEmptyAction
	}
	if strings.TrimSpace(e.Resource) == "" {
		return ErrEmptyResource
	}
	if len(e.ActorID) > maxActorIDLength || len(e.Action) > maxActionLength || len(e.Resource) > maxResourceLength {
		return ErrFieldTooLong
	}
	// Postgres text columns cannot store NUL.
	for _, field := range []string{e.ActorID, e.Action, e.Resource} {
		if strings.ContainsRune(field, 0) {
			return ErrNulByte
		}
	}
	return nil
}
