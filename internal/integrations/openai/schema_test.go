package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"warehouse-wizard/internal/domain"
)

func chatCompletionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"index":   0,
			"message": map[string]string{"role": "assistant", "content": content},
		}},
	})
	require.NoError(t, err)
	return body
}

func TestAttributesSchema_Shape(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.Unmarshal(attributesSchemaJSON, &schema))
	require.Equal(t, "object", schema["type"])
	require.Equal(t, false, schema["additionalProperties"])
	require.ElementsMatch(t,
		[]any{"length", "width", "height", "pallet_type", "capacity", "storage_type"},
		schema["required"])

	props := schema["properties"].(map[string]any)
	require.Equal(t, "integer", props["capacity"].(map[string]any)["type"])
	require.Equal(t, "number", props["height"].(map[string]any)["type"])
}

func TestDecodeAttributes(t *testing.T) {
	valid := `{"length":30,"width":20,"height":12,"pallet_type":"euro","capacity":450,"storage_type":"rack"}`

	out, err := decodeAttributes(valid)
	require.NoError(t, err)
	require.Equal(t, 30.0, out["length"])
	require.Equal(t, "euro", out["pallet_type"])

	out, err = decodeAttributes("```json\n" + valid + "\n```")
	require.NoError(t, err)
	require.Equal(t, 450.0, out["capacity"])

	cases := map[string]string{
		"not json":      "sorry, I cannot help",
		"missing field": `{"length":30,"width":20,"height":12,"pallet_type":"euro","capacity":450}`,
		"extra field":   `{"length":30,"width":20,"height":12,"pallet_type":"euro","capacity":450,"storage_type":"rack","color":"red"}`,
		"wrong type":    `{"length":"thirty","width":20,"height":12,"pallet_type":"euro","capacity":450,"storage_type":"rack"}`,
		"fractional":    `{"length":30,"width":20,"height":12,"pallet_type":"euro","capacity":450.5,"storage_type":"rack"}`,
		"broken":        `{"length":30,`,
	}
	for name, content := range cases {
		_, err := decodeAttributes(content)
		require.ErrorIs(t, err, ErrNoStructuredResult, name)
	}
}

func TestClient_ExtractAttributes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"response_format":{"type":"json_schema"`)
		require.Contains(t, string(reqBody), `"name":"warehouse_attributes"`)
		require.Contains(t, string(reqBody), `"strict":true`)
		require.Contains(t, string(reqBody), `"temperature":0`)
		w.WriteHeader(200)
		_, _ = w.Write(chatCompletionBody(t,
			`{"length":30,"width":20,"height":12,"pallet_type":"euro","capacity":450,"storage_type":"rack"}`))
	})

	out, err := c.ExtractAttributes(context.Background(), "gpt-mock", []domain.ChatMessage{{Role: "user", Content: "summary"}})
	require.NoError(t, err)
	require.Len(t, out, 6)
	require.Equal(t, "rack", out["storage_type"])
}

func TestClient_ExtractAttributes_InvalidOutput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write(chatCompletionBody(t, `{"length":30}`))
	})

	_, err := c.ExtractAttributes(context.Background(), "gpt-mock", nil)
	require.ErrorIs(t, err, ErrNoStructuredResult)
}

func TestClient_ExtractAttributes_Upstream503(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	})

	_, err := c.ExtractAttributes(context.Background(), "gpt-mock", nil)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 503, statusErr.HTTPStatusCode())
}
