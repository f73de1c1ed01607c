package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"warehouse-wizard/internal/domain"
)

// DialogueRequest is the input of one conversational turn.
type DialogueRequest struct {
	History []domain.Message
	Known   domain.Attributes
}

// DialogueResponse is the assistant reply of one turn. Text may carry the
// completion marker.
type DialogueResponse struct {
	Text  string
	Usage domain.Usage
}

// StructuredResult is a parsed extraction keyed by the schema field names
// (length, width, height, pallet_type, capacity, storage_type). A nil result
// means no record could be produced.
type StructuredResult map[string]any

// DialogueService produces assistant turns and structured extractions.
type DialogueService interface {
	Respond(ctx context.Context, req DialogueRequest) (DialogueResponse, error)
	ExtractAttributes(ctx context.Context, text string) (StructuredResult, error)
}

// Moderator screens user input before it enters the conversation.
type Moderator interface {
	Moderate(ctx context.Context, input string) (bool, error)
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, domain.Usage, error)
	ExtractAttributes(ctx context.Context, model string, messages []domain.ChatMessage) (map[string]any, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Dialogue is the DialogueService backed by an LLM whose model name is read
// from the parameter store on first use.
type Dialogue struct {
	params      ParamGetter
	llm         LLMClient
	paramPrefix string

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	model        string
	pinnedPrompt string
}

func NewDialogue(p ParamGetter, llm LLMClient, paramPrefix string) (*Dialogue, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &Dialogue{params: p, llm: llm, paramPrefix: paramPrefix}, nil
}

func (d *Dialogue) Respond(ctx context.Context, req DialogueRequest) (DialogueResponse, error) {
	if err := d.ensureConfig(ctx); err != nil {
		return DialogueResponse{}, err
	}
	text, usage, err := d.llm.Chat(ctx, d.model, buildDialogueMessages(d.pinnedPrompt, req.Known, req.History))
	if err != nil {
		return DialogueResponse{}, fmt.Errorf("usecase: dialogue chat: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return DialogueResponse{}, errors.New("usecase: dialogue chat: empty reply")
	}
	return DialogueResponse{Text: text, Usage: usage}, nil
}

func (d *Dialogue) ExtractAttributes(ctx context.Context, text string) (StructuredResult, error) {
	if err := d.ensureConfig(ctx); err != nil {
		return nil, err
	}
	out, err := d.llm.ExtractAttributes(ctx, d.model, buildExtractionMessages(text))
	if err != nil {
		return nil, fmt.Errorf("usecase: dialogue extraction: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return StructuredResult(out), nil
}

func (d *Dialogue) Moderate(ctx context.Context, input string) (bool, error) {
	return d.llm.Moderate(ctx, input)
}

func (d *Dialogue) ensureConfig(ctx context.Context) error {
	d.cacheMu.RLock()
	if d.cacheLoaded {
		d.cacheMu.RUnlock()
		return nil
	}
	d.cacheMu.RUnlock()

	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if d.cacheLoaded {
		return nil
	}

	model, err := d.params.GetParameter(ctx, d.paramPrefix+"/config/openai_model")
	if err != nil {
		return fmt.Errorf("usecase: load openai model: %w", err)
	}
	// The pinned prompt is optional; a missing parameter keeps the built-in policy.
	pinned, err := d.params.GetParameter(ctx, d.paramPrefix+"/pinned_prompt")
	if err != nil {
		pinned = ""
	}

	d.model = strings.TrimSpace(model)
	d.pinnedPrompt = pinned
	d.cacheLoaded = true
	return nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
