package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"warehouse-wizard/internal/domain"
)

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	// SaveSession writes the messages from index fromMessage onwards plus the
	// session metadata, provided the stored version still equals s.Version.
	// On success s.Version is incremented.
	SaveSession(ctx context.Context, s *domain.Session, fromMessage int) error
}

// ChatService serves conversational turns for sessions held in a SessionStore.
type ChatService struct {
	dialogue  DialogueService
	moderator Moderator
	sessions  SessionStore
	config    ConfigSaver
	bus       Publisher
	opts      DriverOptions
	logger    *slog.Logger
}

type ChatInput struct {
	SessionID string
	Message   string
}

type ChatOutput struct {
	SessionID  string
	Reply      domain.Message
	Attributes domain.Attributes
	Completed  bool
	Fallback   bool
	Warnings   []Warning
}

// NewChatService wires the chat turn dependencies. moderator may be nil to
// skip input screening.
func NewChatService(dialogue DialogueService, moderator Moderator, sessions SessionStore, config ConfigSaver, bus Publisher, opts DriverOptions) (*ChatService, error) {
	if dialogue == nil {
		return nil, errors.New("usecase: dialogue service must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if config == nil {
		return nil, errors.New("usecase: config saver must not be nil")
	}
	if bus == nil {
		return nil, errors.New("usecase: publisher must not be nil")
	}
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = defaultMaxMessage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ChatService{
		dialogue:  dialogue,
		moderator: moderator,
		sessions:  sessions,
		config:    config,
		bus:       bus,
		opts:      opts,
		logger:    opts.Logger,
	}, nil
}

// Start opens a new session and returns its greeting.
func (s *ChatService) Start(ctx context.Context) (ChatOutput, error) {
	session := domain.NewSession(newUUID(), newUUID(), time.Now().UTC())
	if err := s.sessions.SaveSession(ctx, session, 0); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "session_write_error", err)
	}
	return ChatOutput{
		SessionID:  session.ID,
		Reply:      session.Messages[0],
		Attributes: session.Attributes.Clone(),
	}, nil
}

// Chat applies one user message. An empty SessionID starts a new session.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	text, err := validateMessage(in.Message, s.opts.MaxMessageLen)
	if err != nil {
		return ChatOutput{}, err
	}

	if err := s.screen(ctx, text); err != nil {
		return ChatOutput{}, err
	}

	session, persisted, err := s.loadSession(ctx, strings.TrimSpace(in.SessionID))
	if err != nil {
		return ChatOutput{}, err
	}

	opts := s.opts
	opts.Checkpoint = &sessionCheckpoint{store: s.sessions, saved: persisted}
	driver, err := NewDriver(session, s.dialogue, s.config, s.bus, opts)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "driver_init_error", err)
	}
	turn, err := driver.Submit(ctx, text)
	if err != nil {
		return ChatOutput{}, err
	}
	if err := driver.Flush(); err != nil {
		turn.Warnings = append(turn.Warnings, WarningPersistenceFailed)
	}

	s.logger.Info("chat turn processed",
		"session_id", session.ID,
		"completed", turn.Completed,
		"fallback", turn.Fallback,
		"prompt_tokens", turn.Usage.PromptTokens,
		"completion_tokens", turn.Usage.CompletionTokens,
	)

	return ChatOutput{
		SessionID:  session.ID,
		Reply:      turn.Reply,
		Attributes: turn.Attributes,
		Completed:  turn.Completed,
		Fallback:   turn.Fallback,
		Warnings:   turn.Warnings,
	}, nil
}

func (s *ChatService) screen(ctx context.Context, text string) error {
	if s.moderator == nil {
		return nil
	}
	flagged, err := s.moderator.Moderate(ctx, text)
	if err != nil {
		s.logger.Warn("moderation unavailable, continuing", "err", err)
		return nil
	}
	if flagged {
		return newError(ErrorInvalidQuestion, "moderation_flagged", nil)
	}
	return nil
}

func (s *ChatService) loadSession(ctx context.Context, sessionID string) (*domain.Session, int, error) {
	if sessionID == "" {
		return domain.NewSession(newUUID(), newUUID(), time.Now().UTC()), 0, nil
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, 0, newError(ErrorNotFound, "session_not_found", err)
		}
		return nil, 0, newError(ErrorInternal, "session_load_error", err)
	}
	return session, len(session.Messages), nil
}

// sessionCheckpoint saves the messages appended since its last successful
// save together with the session metadata.
type sessionCheckpoint struct {
	store SessionStore
	saved int
}

func (c *sessionCheckpoint) Checkpoint(ctx context.Context, session *domain.Session) error {
	if err := c.store.SaveSession(ctx, session, c.saved); err != nil {
		return err
	}
	c.saved = len(session.Messages)
	return nil
}
