// Package ticket manages short-lived workspace records. A ticket names a
// pending workspace tied to an access token; creating one never touches the
// CAS graph. Expiry is enforced lazily on read.
package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/store/meta"
)

// Stable error codes surfaced by ticket operations.
const (
	CodeTicketNotFound = "TICKET_NOT_FOUND"
	CodeTicketExpired  = "TICKET_EXPIRED"
	CodeAlreadyDone    = "TARGET_EXISTS"
)

// TTL is the ticket lifetime.
const TTL = 24 * time.Hour

const recordPrefix = "TICKET#"

// Status is the ticket lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
)

// Ticket is a stored workspace record.
type Ticket struct {
	Realm    string `json:"realm"`
	TicketID string `json:"ticketId"`
	Name     string `json:"name,omitempty"`

	// TokenID is the access token the workspace belongs to.
	TokenID string `json:"tokenId"`

	Status Status `json:"status"`

	// SubmittedRoot is set once the workspace was submitted.
	SubmittedRoot cas.Key `json:"submittedRoot,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service manages tickets over the metadata store.
type Service struct {
	store meta.Store
	now   func() time.Time
}

// New creates a ticket service.
func New(store meta.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func recordKey(realm, ticketID string) string {
	return recordPrefix + realm + "#" + ticketID
}

func newTicketID() string {
	id := uuid.New()
	var key cas.Key
	copy(key[:], id[:])
	return key.Format(cas.PrefixTicket)
}

// Create opens a pending ticket.
func (s *Service) Create(ctx context.Context, realm, name, tokenID string) (*Ticket, error) {
	now := s.now().UTC()
	ticket := &Ticket{
		Realm:     realm,
		TicketID:  newTicketID(),
		Name:      name,
		TokenID:   tokenID,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}
	value, err := json.Marshal(ticket)
	if err != nil {
		return nil, errtypes.Internal(err, "marshal ticket")
	}
	if err := s.store.PutIfAbsent(ctx, recordKey(realm, ticket.TicketID), value); err != nil {
		return nil, errtypes.Internal(err, "store ticket %s", ticket.TicketID)
	}
	return ticket, nil
}

// Get loads a ticket. An expired ticket is removed and reported as expired.
func (s *Service) Get(ctx context.Context, realm, ticketID string) (*Ticket, error) {
	raw, err := s.store.Get(ctx, recordKey(realm, ticketID))
	if errors.Is(err, meta.ErrNotFound) {
		return nil, errtypes.NotFound(CodeTicketNotFound, "ticket %s not found", ticketID)
	}
	if err != nil {
		return nil, errtypes.Internal(err, "read ticket %s", ticketID)
	}
	var ticket Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return nil, errtypes.Internal(err, "unmarshal ticket %s", ticketID)
	}
	if s.now().After(ticket.ExpiresAt) {
		_ = s.store.Delete(ctx, recordKey(realm, ticketID))
		return nil, errtypes.NotFound(CodeTicketExpired, "ticket %s expired", ticketID)
	}
	return &ticket, nil
}

// Submit records the workspace root and flips the ticket to submitted. A
// ticket submits at most once.
func (s *Service) Submit(ctx context.Context, realm, ticketID string, root cas.Key) (*Ticket, error) {
	ticket, err := s.Get(ctx, realm, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == StatusSubmitted {
		return nil, errtypes.Conflict(CodeAlreadyDone, "ticket %s already submitted", ticketID)
	}
	ticket.Status = StatusSubmitted
	ticket.SubmittedRoot = root
	value, err := json.Marshal(ticket)
	if err != nil {
		return nil, errtypes.Internal(err, "marshal ticket")
	}
	if err := s.store.Put(ctx, recordKey(realm, ticketID), value); err != nil {
		return nil, errtypes.Internal(err, "store ticket %s", ticketID)
	}
	return ticket, nil
}

// Delete removes a ticket.
func (s *Service) Delete(ctx context.Context, realm, ticketID string) error {
	if err := s.store.Delete(ctx, recordKey(realm, ticketID)); err != nil {
		return errtypes.Internal(err, "delete ticket %s", ticketID)
	}
	return nil
}

// List pages through a realm's tickets, skipping expired ones.
func (s *Service) List(ctx context.Context, realm, cursor string, limit int) ([]*Ticket, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	items, next, err := s.store.List(ctx, recordPrefix+realm+"#", cursor, limit)
	if err != nil {
		return nil, "", errtypes.Internal(err, "list tickets in realm %s", realm)
	}
	now := s.now()
	tickets := make([]*Ticket, 0, len(items))
	for _, item := range items {
		var ticket Ticket
		if err := json.Unmarshal(item.Value, &ticket); err != nil {
			return nil, "", errtypes.Internal(err, "unmarshal ticket record %s", item.Key)
		}
		if now.After(ticket.ExpiresAt) {
			continue
		}
		tickets = append(tickets, &ticket)
	}
	return tickets, next, nil
}
