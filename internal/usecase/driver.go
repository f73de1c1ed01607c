package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"warehouse-wizard/internal/domain"
	"warehouse-wizard/internal/events"
	"warehouse-wizard/internal/extract"
)

const (
	defaultTurnTimeout = 20 * time.Second
	defaultMaxMessage  = 500
)

// ConfigSaver writes the single configuration slot.
type ConfigSaver interface {
	SaveConfig(ctx context.Context, attrs domain.Attributes) error
}

// Publisher receives the completion notification.
type Publisher interface {
	Publish(ctx context.Context, c events.Completion)
}

// Checkpointer durably records the session. The driver calls it once to
// claim the session before the dialogue call and once more after the reply
// is applied. A version conflict on the claim means another turn owns the
// session.
type Checkpointer interface {
	Checkpoint(ctx context.Context, s *domain.Session) error
}

// DriverOptions tunes a Driver. Zero values select the defaults.
type DriverOptions struct {
	TurnTimeout   time.Duration
	MaxMessageLen int
	Logger        *slog.Logger
	// Checkpoint is nil for sessions that live only in memory.
	Checkpoint Checkpointer
}

// TurnResult is the outcome of one accepted user turn.
type TurnResult struct {
	Reply      domain.Message
	Attributes domain.Attributes
	Completed  bool
	// Fallback is set when the dialogue call failed and the reply came from
	// the deterministic prompter.
	Fallback bool
	Usage    domain.Usage
	Warnings []Warning
}

// Driver runs the conversation state machine of a single session. At most one
// dialogue call is outstanding; a turn submitted meanwhile is rejected.
type Driver struct {
	dialogue   DialogueService
	saver      ConfigSaver
	bus        Publisher
	checkpoint Checkpointer
	logger     *slog.Logger
	timeout    time.Duration
	maxLen     int

	mu      sync.Mutex
	session *domain.Session

	persist    sync.WaitGroup
	persistMu  sync.Mutex
	persistErr error
}

func NewDriver(session *domain.Session, dialogue DialogueService, saver ConfigSaver, bus Publisher, opts DriverOptions) (*Driver, error) {
	if session == nil {
		return nil, errors.New("usecase: session must not be nil")
	}
	if dialogue == nil {
		return nil, errors.New("usecase: dialogue service must not be nil")
	}
	if saver == nil {
		return nil, errors.New("usecase: config saver must not be nil")
	}
	if bus == nil {
		return nil, errors.New("usecase: publisher must not be nil")
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = defaultTurnTimeout
	}
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = defaultMaxMessage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	// A claim older than any turn can take belongs to a turn that died; let
	// the user retry. A fresh claim keeps the session busy.
	if session.State == domain.StateDispatching && time.Since(session.UpdatedAt) > claimExpiry(opts.TurnTimeout) {
		session.State = domain.StateAwaitingInput
	}
	return &Driver{
		dialogue:   dialogue,
		saver:      saver,
		bus:        bus,
		checkpoint: opts.Checkpoint,
		logger:     opts.Logger.With("session_id", session.ID),
		timeout:    opts.TurnTimeout,
		maxLen:     opts.MaxMessageLen,
		session:    session,
	}, nil
}

// Submit processes one user turn. The completion side effects (configuration
// write and event) run only after the applied turn has been checkpointed.
func (d *Driver) Submit(ctx context.Context, text string) (TurnResult, error) {
	text, err := validateMessage(text, d.maxLen)
	if err != nil {
		return TurnResult{}, err
	}

	req, undo, err := d.begin(text)
	if err != nil {
		return TurnResult{}, err
	}
	if err := d.save(ctx); err != nil {
		undo()
		if errors.Is(err, domain.ErrVersionConflict) {
			return TurnResult{}, newError(ErrorConflict, "session_busy", err)
		}
		return TurnResult{}, newError(ErrorInternal, "session_write_error", err)
	}

	resp, err := await(ctx, d.timeout, func(ctx context.Context) (DialogueResponse, error) {
		return d.dialogue.Respond(ctx, req)
	})
	if err != nil {
		result := d.fallback(err)
		if err := d.save(ctx); err != nil {
			return TurnResult{}, commitError(err)
		}
		return result, nil
	}

	var structured StructuredResult
	if HasMarker(resp.Text) {
		structured, err = await(ctx, d.timeout, func(ctx context.Context) (StructuredResult, error) {
			return d.dialogue.ExtractAttributes(ctx, StripMarker(resp.Text))
		})
		if err != nil {
			d.logger.Warn("structured extraction failed", "err", err)
			structured = nil
		}
	}

	result, effects := d.apply(Reconcile(resp.Text, structured))
	result.Usage = resp.Usage
	if err := d.save(ctx); err != nil {
		return TurnResult{}, commitError(err)
	}

	if effects.config != nil {
		d.persistAsync(ctx, effects.config.Clone())
	}
	if effects.event != nil {
		d.bus.Publish(ctx, *effects.event)
	}
	return result, nil
}

// begin records the user turn and moves the session to dispatching. undo
// restores the session as it was.
func (d *Driver) begin(text string) (DialogueRequest, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.session.State {
	case domain.StateCompleted:
		return DialogueRequest{}, nil, newError(ErrorConflict, "session_completed", nil)
	case domain.StateDispatching:
		return DialogueRequest{}, nil, newError(ErrorConflict, "session_busy", nil)
	}

	prevLen := len(d.session.Messages)
	prevAttrs := d.session.Attributes.Clone()
	prevUpdated := d.session.UpdatedAt
	undo := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.session.Messages = d.session.Messages[:prevLen]
		d.session.Attributes = prevAttrs
		d.session.UpdatedAt = prevUpdated
		d.session.State = domain.StateAwaitingInput
	}

	d.appendMessage(domain.OriginUser, text)
	patch := extract.Extract(text, d.session.Attributes)
	d.session.Attributes = d.session.Attributes.Merge(patch, domain.PolicyHeuristic)
	d.session.State = domain.StateDispatching
	req := DialogueRequest{
		History: append([]domain.Message(nil), d.session.Messages...),
		Known:   d.session.Attributes.Clone(),
	}
	return req, undo, nil
}

func (d *Driver) save(ctx context.Context) error {
	if d.checkpoint == nil {
		return nil
	}
	return d.checkpoint.Checkpoint(ctx, d.session)
}

func commitError(err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return newError(ErrorConflict, "session_version_conflict", err)
	}
	return newError(ErrorInternal, "session_write_error", err)
}

// Flush waits for the pending configuration write and returns its error.
func (d *Driver) Flush() error {
	d.persist.Wait()
	d.persistMu.Lock()
	defer d.persistMu.Unlock()
	return d.persistErr
}

// Session returns the driven session. Callers must not use it while a turn
// is in flight.
func (d *Driver) Session() *domain.Session {
	return d.session
}

func (d *Driver) fallback(cause error) TurnResult {
	if status, ok := upstreamStatusCode(cause); ok {
		d.logger.Warn("dialogue call failed, using fallback prompt", "status", status, "err", cause)
	} else {
		d.logger.Warn("dialogue call failed, using fallback prompt", "err", cause)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	reply := d.appendMessage(domain.OriginAssistant, NextQuestion(d.session.Attributes))
	d.session.State = domain.StateAwaitingInput
	return TurnResult{
		Reply:      reply,
		Attributes: d.session.Attributes.Clone(),
		Fallback:   true,
	}
}

// completionEffects are applied once the completed turn is durable.
type completionEffects struct {
	config *domain.Attributes
	event  *events.Completion
}

func (d *Driver) apply(rec Reconciliation) (TurnResult, completionEffects) {
	d.mu.Lock()
	defer d.mu.Unlock()

	text := rec.DisplayText
	if strings.TrimSpace(text) == "" {
		text = NextQuestion(d.session.Attributes)
		if rec.Complete {
			text = allKnownReply
		}
	}
	reply := d.appendMessage(domain.OriginAssistant, text)

	if !rec.Complete {
		d.session.State = domain.StateAwaitingInput
		return TurnResult{Reply: reply, Attributes: d.session.Attributes.Clone()}, completionEffects{}
	}

	result := TurnResult{Reply: reply, Completed: true}
	var effects completionEffects
	if rec.Merged != nil {
		d.session.Attributes = d.session.Attributes.Merge(*rec.Merged, domain.PolicyAuthoritative)
		snapshot := d.session.Attributes.Clone()
		effects.config = &snapshot
	}
	if rec.ExtractionFailed {
		result.Warnings = append(result.Warnings, WarningExtractionFailed)
	}
	d.session.State = domain.StateCompleted
	result.Attributes = d.session.Attributes.Clone()

	if d.session.Notified {
		return result, effects
	}
	d.session.Notified = true
	effects.event = &events.Completion{
		SessionID:  d.session.ID,
		Attributes: effects.config,
		OccurredAt: time.Now().UTC(),
	}
	return result, effects
}

func (d *Driver) persistAsync(ctx context.Context, attrs domain.Attributes) {
	ctx = context.WithoutCancel(ctx)
	d.persist.Add(1)
	go func() {
		defer d.persist.Done()
		if err := d.saver.SaveConfig(ctx, attrs); err != nil {
			d.logger.Error("failed to persist configuration", "err", err)
			d.persistMu.Lock()
			d.persistErr = err
			d.persistMu.Unlock()
		}
	}()
}

func (d *Driver) appendMessage(origin domain.Origin, text string) domain.Message {
	now := time.Now().UTC()
	msg := domain.Message{
		ID:        newUUID(),
		Origin:    origin,
		Text:      text,
		CreatedAt: now,
	}
	d.session.Messages = append(d.session.Messages, msg)
	d.session.UpdatedAt = now
	return msg
}

// await runs call on its own goroutine and gives up when ctx is done or the
// timeout elapses, whichever comes first.
func await[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// claimExpiry bounds one turn: the dialogue call, the extraction call and
// slack for the two checkpoints.
func claimExpiry(turnTimeout time.Duration) time.Duration {
	return 2*turnTimeout + 10*time.Second
}

func validateMessage(text string, maxLen int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(text) > maxLen {
		return "", newError(ErrorInvalidInput, "message_too_long", nil)
	}
	return text, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
