package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/google/uuid"
)

// --- Outbox Repository Mock ---

// MockOutboxRepository is an in-memory implementation of outbox.Repository.
// It enforces the same lifecycle graph as the real store.
type MockOutboxRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*outbox.Record

	CreateFunc          func(ctx context.Context, aggregateID, eventType string, payload map[string]any) (*outbox.Record, error)
	FindByStatusFunc    func(ctx context.Context, status outbox.Status) ([]*outbox.Record, error)
	UpdateStatusFunc    func(ctx context.Context, id uuid.UUID, status outbox.Status) (*outbox.Record, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{records: make(map[uuid.UUID]*outbox.Record)}
}

// AddRecord pre-populates the mock with a record.
func (m *MockOutboxRepository) AddRecord(rec *outbox.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
}

// GetRecord returns the stored record, or nil.
func (m *MockOutboxRepository) GetRecord(id uuid.UUID) *outbox.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// Len returns the number of stored records.
func (m *MockOutboxRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MockOutboxRepository) Create(ctx context.Context, aggregateID, eventType string, payload map[string]any) (*outbox.Record, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, aggregateID, eventType, payload)
	}
	rec := outbox.NewRecord(aggregateID, eventType, payload)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *MockOutboxRepository) FindByStatus(ctx context.Context, status outbox.Status) ([]*outbox.Record, error) {
	if m.FindByStatusFunc != nil {
		return m.FindByStatusFunc(ctx, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Record
	for _, rec := range m.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status outbox.Status) (*outbox.Record, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrRecordNotFound
	}
	if !outbox.CanTransition(rec.Status, status) {
		return nil, domainErrors.ErrInvalidStatusTransition
	}
	rec.Status = status
	return rec, nil
}

func (m *MockOutboxRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, rec := range m.records {
		if rec.Status == outbox.StatusArchived && rec.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- Authorizer Mock ---

// MockAuthorizer accepts the tokens in ValidTokens and grants the roles in
// Roles. Override funcs win when set.
type MockAuthorizer struct {
	ValidTokens map[string]bool
	Roles       map[string][]string
	DefaultRole string

	ValidateFunc func(ctx context.Context, token string) bool
}

func NewMockAuthorizer(defaultRole string) *MockAuthorizer {
	return &MockAuthorizer{
		ValidTokens: make(map[string]bool),
		Roles:       make(map[string][]string),
		DefaultRole: defaultRole,
	}
}

// Allow registers a valid token with the given roles.
func (m *MockAuthorizer) Allow(token string, roles ...string) {
	m.ValidTokens[token] = true
	m.Roles[token] = roles
}

func (m *MockAuthorizer) Validate(ctx context.Context, token string) bool {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, token)
	}
	return m.ValidTokens[token]
}

func (m *MockAuthorizer) HasRole(_ context.Context, token, role string) bool {
	for _, r := range m.Roles[token] {
		if r == role {
			return true
		}
	}
	return false
}

func (m *MockAuthorizer) IsAuthorized(ctx context.Context, token string) bool {
	return m.HasRole(ctx, token, m.DefaultRole)
}

func (m *MockAuthorizer) IsAuthorizedForOperation(ctx context.Context, token, operation string) bool {
	return m.HasRole(ctx, token, routing.RoleForOperation(operation, m.DefaultRole))
}

// --- Broker Mocks ---

// MockPublisher records what it was asked to send.
type MockPublisher struct {
	mu        sync.Mutex
	channel   string
	published []routing.Envelope

	PublishErr  error
	IsCancelled bool
}

func NewMockPublisher(channel string) *MockPublisher {
	return &MockPublisher{channel: channel}
}

func (p *MockPublisher) Channel() string { return p.channel }

func (p *MockPublisher) Publish(_ context.Context, env routing.Envelope) error {
	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, env)
	return nil
}

func (p *MockPublisher) Cancelled(context.Context) bool { return p.IsCancelled }

// Published returns a copy of everything sent through this handle.
func (p *MockPublisher) Published() []routing.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]routing.Envelope, len(p.published))
	copy(out, p.published)
	return out
}

// MockBinder creates MockPublishers and counts bind calls.
type MockBinder struct {
	mu        sync.Mutex
	bindCount map[string]int
	created   map[string]*MockPublisher

	BindErr   error
	BindDelay time.Duration
	BindFunc  func(ctx context.Context, channel string) (broker.Publisher, error)
}

func NewMockBinder() *MockBinder {
	return &MockBinder{
		bindCount: make(map[string]int),
		created:   make(map[string]*MockPublisher),
	}
}

func (b *MockBinder) Bind(ctx context.Context, channel string) (broker.Publisher, error) {
	if b.BindFunc != nil {
		return b.BindFunc(ctx, channel)
	}
	if b.BindDelay > 0 {
		time.Sleep(b.BindDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindCount[channel]++
	if b.BindErr != nil {
		return nil, b.BindErr
	}
	p := NewMockPublisher(channel)
	b.created[channel] = p
	return p, nil
}

// BindCount returns how many times the channel was bound.
func (b *MockBinder) BindCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindCount[channel]
}

// Publisher returns the last publisher created for the channel, or nil.
func (b *MockBinder) Publisher(channel string) *MockPublisher {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[channel]
}

// --- Request/Reply Mocks ---

// MockRequester returns a canned reply or error.
type MockRequester struct {
	mu       sync.Mutex
	requests []routing.Envelope

	Reply      routing.Envelope
	RequestErr error
}

func (m *MockRequester) Request(_ context.Context, address string, env routing.Envelope) (routing.Envelope, error) {
	m.mu.Lock()
	m.requests = append(m.requests, env)
	m.mu.Unlock()
	if m.RequestErr != nil {
		return nil, m.RequestErr
	}
	return m.Reply, nil
}

// Requests returns a copy of everything sent through this requester.
func (m *MockRequester) Requests() []routing.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]routing.Envelope, len(m.requests))
	copy(out, m.requests)
	return out
}

// MockResponder records delivered replies by address.
type MockResponder struct {
	mu        sync.Mutex
	responses map[string][]routing.Envelope

	RespondErr error
}

func NewMockResponder() *MockResponder {
	return &MockResponder{responses: make(map[string][]routing.Envelope)}
}

func (m *MockResponder) Respond(_ context.Context, replyAddress string, env routing.Envelope) error {
	if m.RespondErr != nil {
		return m.RespondErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[replyAddress] = append(m.responses[replyAddress], env)
	return nil
}

// Responses returns the replies delivered to the address.
func (m *MockResponder) Responses(replyAddress string) []routing.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.responses[replyAddress]
}

// --- Delivery helpers ---

// DeliveryState tracks how a test delivery was settled.
type DeliveryState struct {
	mu     sync.Mutex
	acked  bool
	nacked bool
	cause  error
}

func (s *DeliveryState) Acked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked
}

func (s *DeliveryState) Nacked() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nacked, s.cause
}

// NewTestDelivery builds a delivery whose settlement is observable.
func NewTestDelivery(id, channel string, env routing.Envelope) (broker.Delivery, *DeliveryState) {
	state := &DeliveryState{}
	d := broker.NewDelivery(id, channel, env,
		func(context.Context) error {
			state.mu.Lock()
			defer state.mu.Unlock()
			state.acked = true
			return nil
		},
		func(_ context.Context, cause error) error {
			state.mu.Lock()
			defer state.mu.Unlock()
			state.nacked = true
			state.cause = cause
			return nil
		},
	)
	return d, state
}
