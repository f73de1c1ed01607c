package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"warehouse-wizard/internal/domain"
	"warehouse-wizard/internal/integrations/openai"
	"warehouse-wizard/internal/repository"
)

type driverFixture struct {
	session   *domain.Session
	dialogue  *fakeDialogue
	config    *fakeConfigStore
	publisher *fakePublisher
	driver    *Driver
}

func newDriverFixture(t *testing.T, dialogue *fakeDialogue, opts DriverOptions) *driverFixture {
	t.Helper()
	f := &driverFixture{
		session:   domain.NewSession("s-1", "greeting", time.Now().UTC()),
		dialogue:  dialogue,
		config:    &fakeConfigStore{},
		publisher: &fakePublisher{},
	}
	d, err := NewDriver(f.session, f.dialogue, f.config, f.publisher, opts)
	require.NoError(t, err)
	f.driver = d
	return f
}

func TestNewDriver_ValidatesDependencies(t *testing.T) {
	s := domain.NewSession("s-1", "g", time.Now())
	_, err := NewDriver(nil, &fakeDialogue{}, &fakeConfigStore{}, &fakePublisher{}, DriverOptions{})
	require.Error(t, err)
	_, err = NewDriver(s, nil, &fakeConfigStore{}, &fakePublisher{}, DriverOptions{})
	require.Error(t, err)
	_, err = NewDriver(s, &fakeDialogue{}, nil, &fakePublisher{}, DriverOptions{})
	require.Error(t, err)
	_, err = NewDriver(s, &fakeDialogue{}, &fakeConfigStore{}, nil, DriverOptions{})
	require.Error(t, err)
}

func TestSubmit_HeuristicPatchReachesDialogue(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{replies: []dialogueReply{{text: "Got it. How wide is it?"}}}, DriverOptions{})

	res, err := f.driver.Submit(context.Background(), "My warehouse is 30 meters long")
	require.NoError(t, err)
	require.False(t, res.Completed)
	require.False(t, res.Fallback)
	require.Equal(t, "Got it. How wide is it?", res.Reply.Text)
	require.True(t, res.Attributes.Equal(domain.Attributes{Length: domain.Float(30)}))

	require.Len(t, f.dialogue.requests, 1)
	req := f.dialogue.requests[0]
	require.Equal(t, 30.0, *req.Known.Length)
	require.Len(t, req.History, 2)
	require.Equal(t, domain.OriginUser, req.History[1].Origin)

	require.Equal(t, domain.StateAwaitingInput, f.session.State)
	require.Len(t, f.session.Messages, 3)
	require.Empty(t, f.publisher.events)
	require.NoError(t, f.driver.Flush())
	require.Zero(t, f.config.saveCount())
}

func TestSubmit_CompletionWithStructuredResult(t *testing.T) {
	dialogue := &fakeDialogue{
		replies:    []dialogueReply{{text: "Perfect, your warehouse is configured. " + CompletionMarker}},
		structured: completeStructured(),
	}
	f := newDriverFixture(t, dialogue, DriverOptions{})

	res, err := f.driver.Submit(context.Background(), "Racks please")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Empty(t, res.Warnings)
	require.Equal(t, "Perfect, your warehouse is configured.", res.Reply.Text)
	require.True(t, res.Attributes.Equal(wantComplete()), "got %+v", res.Attributes)
	require.Equal(t, []string{"Perfect, your warehouse is configured."}, dialogue.extracted)

	require.NoError(t, f.driver.Flush())
	require.Equal(t, 1, f.config.saveCount())
	require.True(t, f.config.saved[0].Equal(wantComplete()))

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, "s-1", f.publisher.events[0].SessionID)
	require.True(t, f.publisher.events[0].Attributes.Equal(wantComplete()))

	require.Equal(t, domain.StateCompleted, f.session.State)
	require.True(t, f.session.Notified)
	for _, m := range f.session.Messages {
		require.NotContains(t, m.Text, CompletionMarker)
	}
}

func TestSubmit_AuthoritativeOverridesHeuristic(t *testing.T) {
	structured := completeStructured()
	structured["length"] = 32.0
	f := newDriverFixture(t, &fakeDialogue{
		replies:    []dialogueReply{{text: "Done " + CompletionMarker}},
		structured: structured,
	}, DriverOptions{})

	res, err := f.driver.Submit(context.Background(), "It is 30 meters long")
	require.NoError(t, err)
	require.Equal(t, 32.0, *res.Attributes.Length)
	require.Equal(t, 32.0, *f.session.Attributes.Length)
}

func TestSubmit_DialogueFailureFallsBack(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{
		replies: []dialogueReply{{err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}}},
	}, DriverOptions{})

	res, err := f.driver.Submit(context.Background(), "My warehouse is 30 meters long")
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.False(t, res.Completed)
	require.Equal(t, fallbackQuestions[domain.FieldHeight], res.Reply.Text)
	require.Equal(t, domain.OriginAssistant, res.Reply.Origin)
	require.Equal(t, domain.StateAwaitingInput, f.session.State)
	require.Empty(t, f.publisher.events)
	require.NoError(t, f.driver.Flush())
	require.Zero(t, f.config.saveCount())
}

func TestSubmit_FallbackAsksFirstMissingField(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{replies: []dialogueReply{{err: errors.New("network down")}}}, DriverOptions{})
	f.session.Attributes = domain.Attributes{Height: domain.Float(10), Length: domain.Float(30)}

	res, err := f.driver.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, fallbackQuestions[domain.FieldWidth], res.Reply.Text)
}

func TestSubmit_TimeoutIsFailure(t *testing.T) {
	dialogue := &fakeDialogue{
		replies: []dialogueReply{{text: "too late " + CompletionMarker}},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	defer close(dialogue.release)
	f := newDriverFixture(t, dialogue, DriverOptions{TurnTimeout: 20 * time.Millisecond})

	res, err := f.driver.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.False(t, res.Completed)
	require.Empty(t, f.publisher.events)
}

func TestSubmit_MarkerWithoutStructuredResult(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{
		replies: []dialogueReply{{text: "That's everything! " + CompletionMarker}},
	}, DriverOptions{})

	res, err := f.driver.Submit(context.Background(), "Drive-in")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Equal(t, []Warning{WarningExtractionFailed}, res.Warnings)
	require.Equal(t, "That's everything!", res.Reply.Text)

	require.NoError(t, f.driver.Flush())
	require.Zero(t, f.config.saveCount(), "a null record must never be persisted")
	require.Len(t, f.publisher.events, 1)
	require.Nil(t, f.publisher.events[0].Attributes)
	require.Equal(t, domain.StateCompleted, f.session.State)
	// heuristic values remain available
	require.Equal(t, "drive-in", *res.Attributes.StorageType)
}

func TestSubmit_ExtractionErrorTreatedAsAbsent(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{
		replies:    []dialogueReply{{text: CompletionMarker}},
		extractErr: errors.New("schema mismatch"),
		structured: completeStructured(),
	}, DriverOptions{})

	res, err := f.driver.Submit(context.Background(), "ok")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Equal(t, []Warning{WarningExtractionFailed}, res.Warnings)
	require.Equal(t, allKnownReply, res.Reply.Text, "an empty reply falls back to the closing message")
}

func TestSubmit_PersistenceFailureKeepsState(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{
		replies:    []dialogueReply{{text: "Done " + CompletionMarker}},
		structured: completeStructured(),
	}, DriverOptions{})
	f.config.saveErr = errors.New("disk full")

	res, err := f.driver.Submit(context.Background(), "ok")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.EqualError(t, f.driver.Flush(), "disk full")
	require.True(t, f.session.Attributes.Equal(wantComplete()))
	require.Equal(t, domain.StateCompleted, f.session.State)
	require.Len(t, f.publisher.events, 1)
}

func TestSubmit_CompletedSessionRejectsTurnsAndNotifiesOnce(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{
		replies:    []dialogueReply{{text: "Done " + CompletionMarker}},
		structured: completeStructured(),
	}, DriverOptions{})

	_, err := f.driver.Submit(context.Background(), "ok")
	require.NoError(t, err)
	_, err = f.driver.Submit(context.Background(), "one more thing")
	expectUsecaseError(t, err, ErrorConflict, "session_completed")

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, 1, f.dialogue.respondCalls())
	require.NoError(t, f.driver.Flush())
	require.Equal(t, 1, f.config.saveCount())
}

func TestSubmit_RejectsTurnWhileDispatching(t *testing.T) {
	dialogue := &fakeDialogue{
		replies: []dialogueReply{{text: "What's the width?"}},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f := newDriverFixture(t, dialogue, DriverOptions{})

	type outcome struct {
		res TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.driver.Submit(context.Background(), "first")
		done <- outcome{res, err}
	}()

	<-dialogue.started
	_, err := f.driver.Submit(context.Background(), "second")
	expectUsecaseError(t, err, ErrorConflict, "session_busy")

	close(dialogue.release)
	first := <-done
	require.NoError(t, first.err)
	require.Equal(t, "What's the width?", first.res.Reply.Text)
	require.Equal(t, 1, dialogue.respondCalls())

	texts := make([]string, 0, len(f.session.Messages))
	for _, m := range f.session.Messages {
		texts = append(texts, m.Text)
	}
	require.Equal(t, []string{domain.Greeting, "first", "What's the width?"}, texts)
}

func TestSubmit_ValidatesMessage(t *testing.T) {
	f := newDriverFixture(t, &fakeDialogue{}, DriverOptions{MaxMessageLen: 10})

	_, err := f.driver.Submit(context.Background(), "   ")
	expectUsecaseError(t, err, ErrorInvalidInput, "empty_message")
	_, err = f.driver.Submit(context.Background(), strings.Repeat("a", 11))
	expectUsecaseError(t, err, ErrorInvalidInput, "message_too_long")
	require.Len(t, f.session.Messages, 1)
}

func TestNewDriver_ReleasesExpiredClaim(t *testing.T) {
	s := domain.NewSession("s-1", "g", time.Now().Add(-time.Hour))
	s.State = domain.StateDispatching
	d, err := NewDriver(s, &fakeDialogue{replies: []dialogueReply{{text: "hi"}}}, &fakeConfigStore{}, &fakePublisher{}, DriverOptions{})
	require.NoError(t, err)
	_, err = d.Submit(context.Background(), "hello")
	require.NoError(t, err)
}

func TestNewDriver_KeepsFreshClaim(t *testing.T) {
	s := domain.NewSession("s-1", "g", time.Now())
	s.State = domain.StateDispatching
	dialogue := &fakeDialogue{replies: []dialogueReply{{text: "hi"}}}
	d, err := NewDriver(s, dialogue, &fakeConfigStore{}, &fakePublisher{}, DriverOptions{})
	require.NoError(t, err)
	_, err = d.Submit(context.Background(), "hello")
	expectUsecaseError(t, err, ErrorConflict, "session_busy")
	require.Zero(t, dialogue.respondCalls())
}

func TestSubmit_LosingClaimLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	sessions := repository.NewMemorySessions()
	require.NoError(t, sessions.SaveSession(ctx, domain.NewSession("s-1", "g", time.Now()), 0))

	// two requests loaded the same version; the first one claims it
	winner, err := sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	loser, err := sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	winner.State = domain.StateDispatching
	require.NoError(t, sessions.SaveSession(ctx, winner, 1))

	dialogue := &fakeDialogue{replies: []dialogueReply{{text: "hi"}}}
	d, err := NewDriver(loser, dialogue, &fakeConfigStore{}, &fakePublisher{}, DriverOptions{
		Checkpoint: &sessionCheckpoint{store: sessions, saved: 1},
	})
	require.NoError(t, err)

	_, err = d.Submit(ctx, "30 meters long")
	expectUsecaseError(t, err, ErrorConflict, "session_busy")
	require.Zero(t, dialogue.respondCalls())
	require.Len(t, loser.Messages, 1)
	require.True(t, loser.Attributes.IsZero())
	require.Equal(t, domain.StateAwaitingInput, loser.State)
}

type recordingCheckpoint struct {
	states []domain.SessionState
	failOn int
	err    error
	// seen counts events published before each checkpoint
	publisher *fakePublisher
	seen      []int
}

func (c *recordingCheckpoint) Checkpoint(_ context.Context, s *domain.Session) error {
	c.states = append(c.states, s.State)
	c.publisher.mu.Lock()
	c.seen = append(c.seen, len(c.publisher.events))
	c.publisher.mu.Unlock()
	if len(c.states) == c.failOn {
		return c.err
	}
	return nil
}

func TestSubmit_CheckpointsBeforeSideEffects(t *testing.T) {
	publisher := &fakePublisher{}
	checkpoint := &recordingCheckpoint{publisher: publisher}
	config := &fakeConfigStore{}
	s := domain.NewSession("s-1", "g", time.Now())
	d, err := NewDriver(s, &fakeDialogue{
		replies:    []dialogueReply{{text: "Done " + CompletionMarker}},
		structured: completeStructured(),
	}, config, publisher, DriverOptions{Checkpoint: checkpoint})
	require.NoError(t, err)

	_, err = d.Submit(context.Background(), "ok")
	require.NoError(t, err)
	require.NoError(t, d.Flush())
	require.Equal(t, []domain.SessionState{domain.StateDispatching, domain.StateCompleted}, checkpoint.states)
	require.Equal(t, []int{0, 0}, checkpoint.seen)
	require.Len(t, publisher.events, 1)
	require.Equal(t, 1, config.saveCount())
}

func TestSubmit_FailedCommitSkipsSideEffects(t *testing.T) {
	publisher := &fakePublisher{}
	checkpoint := &recordingCheckpoint{publisher: publisher, failOn: 2, err: errors.New("throttled")}
	config := &fakeConfigStore{}
	s := domain.NewSession("s-1", "g", time.Now())
	d, err := NewDriver(s, &fakeDialogue{
		replies:    []dialogueReply{{text: "Done " + CompletionMarker}},
		structured: completeStructured(),
	}, config, publisher, DriverOptions{Checkpoint: checkpoint})
	require.NoError(t, err)

	_, err = d.Submit(context.Background(), "ok")
	expectUsecaseError(t, err, ErrorInternal, "session_write_error")
	require.NoError(t, d.Flush())
	require.Empty(t, publisher.events)
	require.Zero(t, config.saveCount())
}

func TestSubmit_FallbackIsCheckpointed(t *testing.T) {
	checkpoint := &recordingCheckpoint{publisher: &fakePublisher{}}
	s := domain.NewSession("s-1", "g", time.Now())
	d, err := NewDriver(s, &fakeDialogue{replies: []dialogueReply{{err: errors.New("network down")}}},
		&fakeConfigStore{}, &fakePublisher{}, DriverOptions{Checkpoint: checkpoint})
	require.NoError(t, err)

	res, err := d.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.Equal(t, []domain.SessionState{domain.StateDispatching, domain.StateAwaitingInput}, checkpoint.states)
}

func TestFallback_NextQuestionOrder(t *testing.T) {
	a := domain.Attributes{}
	require.Equal(t, fallbackQuestions[domain.FieldHeight], NextQuestion(a))
	a.Height = domain.Float(10)
	require.Equal(t, fallbackQuestions[domain.FieldLength], NextQuestion(a))
	a.Length = domain.Float(10)
	require.Equal(t, fallbackQuestions[domain.FieldWidth], NextQuestion(a))
	a.Width = domain.Float(10)
	require.Equal(t, fallbackQuestions[domain.FieldPalletType], NextQuestion(a))
	a.PalletType = domain.String("euro")
	require.Equal(t, fallbackQuestions[domain.FieldStorage], NextQuestion(a))
	a.Storage = domain.Int(5)
	require.Equal(t, fallbackQuestions[domain.FieldStorageType], NextQuestion(a))
	a.StorageType = domain.String("rack")
	require.Equal(t, allKnownReply, NextQuestion(a))
}
