package paramstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Static serves parameters from memory. The local server builds one from
// environment variables instead of calling SSM.
type Static map[string]string

func (s Static) GetParameter(_ context.Context, name string) (string, error) {
	v, ok := s[strings.TrimSpace(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return v, nil
}

// FromEnv maps the local environment onto the parameter names used under
// prefix. lookup is usually os.LookupEnv.
//
//	OPENAI_API_KEY -> <prefix>/open-ai-token ({"token": ...})
//	OPENAI_MODEL   -> <prefix>/config/openai_model
//	PINNED_PROMPT  -> <prefix>/pinned_prompt
func FromEnv(prefix string, lookup func(string) (string, bool)) (Static, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	out := Static{}

	if key, ok := lookup("OPENAI_API_KEY"); ok && strings.TrimSpace(key) != "" {
		raw, err := json.Marshal(map[string]string{"token": strings.TrimSpace(key)})
		if err != nil {
			return nil, fmt.Errorf("paramstore: encode token: %w", err)
		}
		out[prefix+"/open-ai-token"] = string(raw)
	}

	model := "gpt-4o-mini"
	if v, ok := lookup("OPENAI_MODEL"); ok && strings.TrimSpace(v) != "" {
		model = strings.TrimSpace(v)
	}
	out[prefix+"/config/openai_model"] = model

	if v, ok := lookup("PINNED_PROMPT"); ok && strings.TrimSpace(v) != "" {
		out[prefix+"/pinned_prompt"] = v
	}
	return out, nil
}
