package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"warehouse-wizard/internal/domain"
	"warehouse-wizard/internal/events"
)

type dialogueReply struct {
	text string
	err  error
}

type fakeDialogue struct {
	mu         sync.Mutex
	replies    []dialogueReply
	requests   []DialogueRequest
	structured StructuredResult
	extractErr error
	extracted  []string

	// started, when set, receives once Respond is entered; Respond then
	// waits for release to be closed.
	started chan struct{}
	release chan struct{}
}

func (f *fakeDialogue) Respond(ctx context.Context, req DialogueRequest) (DialogueResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return DialogueResponse{}, ctx.Err()
		}
	}

	if len(f.replies) == 0 {
		return DialogueResponse{}, errors.New("no dialogue reply configured")
	}
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	r := f.replies[idx]
	return DialogueResponse{Text: r.text, Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 5}}, r.err
}

func (f *fakeDialogue) ExtractAttributes(_ context.Context, text string) (StructuredResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted = append(f.extracted, text)
	return f.structured, f.extractErr
}

func (f *fakeDialogue) respondCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeConfigStore struct {
	mu      sync.Mutex
	current *domain.Attributes
	saved   []domain.Attributes
	saveErr error
	loadErr error
}

func (f *fakeConfigStore) SaveConfig(_ context.Context, attrs domain.Attributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, attrs)
	if f.saveErr != nil {
		return f.saveErr
	}
	c := attrs.Clone()
	f.current = &c
	return nil
}

func (f *fakeConfigStore) LoadConfig(_ context.Context) (domain.Attributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return domain.Attributes{}, f.loadErr
	}
	if f.current == nil {
		return domain.Attributes{}, fmt.Errorf("fake: %w", domain.ErrNoConfiguration)
	}
	return f.current.Clone(), nil
}

func (f *fakeConfigStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Completion
}

func (f *fakePublisher) Publish(_ context.Context, c events.Completion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, c)
}

type fakeSessions struct {
	sessions map[string]*domain.Session
	getErr   error
	saveErr  error
	// failOn fails only the save with this 1-based call number.
	failOn    int
	failErr   error
	saveCalls int
	froms     []int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*domain.Session{}}
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*domain.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", domain.ErrSessionNotFound)
	}
	cp := *s
	cp.Messages = append([]domain.Message(nil), s.Messages...)
	cp.Attributes = s.Attributes.Clone()
	return &cp, nil
}

func (f *fakeSessions) SaveSession(_ context.Context, s *domain.Session, from int) error {
	f.saveCalls++
	f.froms = append(f.froms, from)
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.failOn == f.saveCalls {
		return f.failErr
	}
	s.Version++
	cp := *s
	cp.Messages = append([]domain.Message(nil), s.Messages...)
	f.sessions[s.ID] = &cp
	return nil
}

type fakeModerator struct {
	flagged bool
	err     error
	calls   int
}

func (f *fakeModerator) Moderate(context.Context, string) (bool, error) {
	f.calls++
	return f.flagged, f.err
}

func completeStructured() StructuredResult {
	return StructuredResult{
		"length":       30.0,
		"width":        20.0,
		"height":       12.0,
		"pallet_type":  "euro",
		"capacity":     450.0,
		"storage_type": "rack",
	}
}

func wantComplete() domain.Attributes {
	return domain.Attributes{
		Length:      domain.Float(30),
		Width:       domain.Float(20),
		Height:      domain.Float(12),
		PalletType:  domain.String("euro"),
		Storage:     domain.Int(450),
		StorageType: domain.String("rack"),
	}
}

func expectUsecaseError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}
