package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"warehouse-wizard/internal/domain"
)

type fakeParams struct {
	values map[string]string
	calls  map[string]int
}

func (f *fakeParams) GetParameter(_ context.Context, name string) (string, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
	v, ok := f.values[name]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

type fakeLLM struct {
	reply      string
	usage      domain.Usage
	chatErr    error
	extracted  map[string]any
	extractErr error
	flagged    bool

	model    string
	messages []domain.ChatMessage
}

func (f *fakeLLM) Chat(_ context.Context, model string, messages []domain.ChatMessage) (string, domain.Usage, error) {
	f.model = model
	f.messages = messages
	return f.reply, f.usage, f.chatErr
}

func (f *fakeLLM) ExtractAttributes(_ context.Context, model string, messages []domain.ChatMessage) (map[string]any, error) {
	f.model = model
	f.messages = messages
	return f.extracted, f.extractErr
}

func (f *fakeLLM) Moderate(context.Context, string) (bool, error) {
	return f.flagged, nil
}

func newTestDialogue(t *testing.T, llm *fakeLLM) (*Dialogue, *fakeParams) {
	t.Helper()
	params := &fakeParams{values: map[string]string{
		"/wizard/config/openai_model": " gpt-4o-mini ",
	}}
	d, err := NewDialogue(params, llm, "/wizard/")
	require.NoError(t, err)
	return d, params
}

func TestNewDialogue_Validation(t *testing.T) {
	_, err := NewDialogue(nil, &fakeLLM{}, "/wizard")
	require.Error(t, err)
	_, err = NewDialogue(&fakeParams{}, nil, "/wizard")
	require.Error(t, err)
	_, err = NewDialogue(&fakeParams{}, &fakeLLM{}, "  ")
	require.Error(t, err)
}

func TestDialogue_RespondBuildsPrompt(t *testing.T) {
	llm := &fakeLLM{reply: "How long is it?", usage: domain.Usage{PromptTokens: 7, CompletionTokens: 3}}
	d, params := newTestDialogue(t, llm)

	known := domain.Attributes{Height: domain.Float(12)}
	history := []domain.Message{
		{Origin: domain.OriginAssistant, Text: domain.Greeting},
		{Origin: domain.OriginUser, Text: "It is 12 m high"},
		{Origin: domain.OriginUser, Text: "   "},
	}
	resp, err := d.Respond(context.Background(), DialogueRequest{History: history, Known: known})
	require.NoError(t, err)
	require.Equal(t, "How long is it?", resp.Text)
	require.Equal(t, 7, resp.Usage.PromptTokens)
	require.Equal(t, "gpt-4o-mini", llm.model)

	require.Len(t, llm.messages, 4, "blank history entries are skipped")
	require.Equal(t, domain.RoleSystem, llm.messages[0].Role)
	require.Contains(t, llm.messages[0].Content, CompletionMarker)
	require.Contains(t, llm.messages[1].Content, "- height (meters): 12")
	require.Contains(t, llm.messages[1].Content, "- length (meters): unknown")
	require.Contains(t, llm.messages[1].Content, "Still Missing: length (meters), width (meters)")
	require.Equal(t, domain.RoleAssistant, llm.messages[2].Role)
	require.Equal(t, domain.RoleUser, llm.messages[3].Role)

	_, err = d.Respond(context.Background(), DialogueRequest{Known: known})
	require.NoError(t, err)
	require.Equal(t, 1, params.calls["/wizard/config/openai_model"], "model is loaded once")
}

func TestDialogue_PinnedPromptLeadsPolicy(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	d, params := newTestDialogue(t, llm)
	params.values["/wizard/pinned_prompt"] = "Always answer in English."

	_, err := d.Respond(context.Background(), DialogueRequest{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(llm.messages[0].Content, "Always answer in English."))
}

func TestDialogue_RespondErrors(t *testing.T) {
	d, err := NewDialogue(&fakeParams{}, &fakeLLM{reply: "hi"}, "/wizard")
	require.NoError(t, err)
	_, err = d.Respond(context.Background(), DialogueRequest{})
	require.ErrorContains(t, err, "load openai model")

	llm := &fakeLLM{chatErr: errors.New("boom")}
	d, _ = newTestDialogue(t, llm)
	_, err = d.Respond(context.Background(), DialogueRequest{})
	require.ErrorContains(t, err, "boom")

	llm.chatErr = nil
	llm.reply = "  "
	_, err = d.Respond(context.Background(), DialogueRequest{})
	require.ErrorContains(t, err, "empty reply")
}

func TestDialogue_ExtractAttributes(t *testing.T) {
	llm := &fakeLLM{extracted: map[string]any{"length": 30.0}}
	d, _ := newTestDialogue(t, llm)

	out, err := d.ExtractAttributes(context.Background(), "Summary:\n 30 m   long")
	require.NoError(t, err)
	require.Equal(t, StructuredResult{"length": 30.0}, out)
	require.Len(t, llm.messages, 2)
	require.Equal(t, "Summary: 30 m long", llm.messages[1].Content)

	llm.extracted = map[string]any{}
	out, err = d.ExtractAttributes(context.Background(), "nothing")
	require.NoError(t, err)
	require.Nil(t, out)

	llm.extractErr = errors.New("bad schema")
	_, err = d.ExtractAttributes(context.Background(), "x")
	require.ErrorContains(t, err, "bad schema")
}

func TestUpstreamStatusCode(t *testing.T) {
	_, ok := upstreamStatusCode(errors.New("plain"))
	require.False(t, ok)
}
