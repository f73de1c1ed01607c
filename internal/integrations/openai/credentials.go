package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Getter reads a single parameter value.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

const tokenLoadTimeout = 5 * time.Second

// tokenPayload is the JSON document stored under the token parameter.
type tokenPayload struct {
	Token string `json:"token"`
}

// resolveAPIKey loads the token on first use and keeps it for the life of the
// process. Failures are not cached; the next request tries again. The load
// ignores the caller's cancellation so one aborted request cannot fail it.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenLoadTimeout)
	defer cancel()
	key, err := loadToken(loadCtx, c.getter, c.tokenParameterName())
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

func loadToken(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token %s: %w", name, err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal token parameter: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("openai: API token is empty")
	}
	return strings.TrimSpace(tp.Token), nil
}
