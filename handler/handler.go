package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"warehouse-wizard/internal/domain"
	"warehouse-wizard/internal/usecase"
	"warehouse-wizard/internal/visualization"
)

const (
	correlationHeader = "X-Correlation-Id"
	exportPathPrefix  = "/api/export/"
)

type ChatUseCase interface {
	Start(ctx context.Context) (usecase.ChatOutput, error)
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type ConfigUseCase interface {
	Get(ctx context.Context) (domain.Attributes, bool, error)
	Save(ctx context.Context, attrs domain.Attributes) error
}

type ExportUseCase interface {
	Render(ctx context.Context) (usecase.ExportOutput, error)
	Fetch(ctx context.Context, id string) (domain.Artifact, error)
}

// ViewSource returns the layout rendered for a completed session.
type ViewSource interface {
	View(sessionID string) (visualization.View, bool)
}

type Handler struct {
	chat   ChatUseCase
	config ConfigUseCase
	export ExportUseCase
	views  ViewSource
	logger *slog.Logger
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type chatResponse struct {
	SessionID     string              `json:"sessionId"`
	Message       messageResponse     `json:"message"`
	Attributes    domain.Attributes   `json:"attributes"`
	Completed     bool                `json:"completed"`
	Fallback      bool                `json:"fallback,omitempty"`
	Warnings      []usecase.Warning   `json:"warnings,omitempty"`
	Visualization *visualization.View `json:"visualization,omitempty"`
}

type exportResponse struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	URL      string `json:"url"`
}

type messageBody struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(chat ChatUseCase, config ConfigUseCase, export ExportUseCase, views ViewSource, logger *slog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if config == nil {
		return nil, errors.New("handler: config use case must not be nil")
	}
	if export == nil {
		return nil, errors.New("handler: export use case must not be nil")
	}
	if views == nil {
		return nil, errors.New("handler: view source must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chat: chat, config: config, export: export, views: views, logger: logger}, nil
}

// Handle routes an API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	resp := h.route(ctx, logger, req)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = correlationID
	return resp, nil
}

func (h *Handler) route(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	path := strings.TrimRight(req.Path, "/")
	method := req.HTTPMethod

	switch {
	case path == "/api/chat":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.handleChat(ctx, logger, req.Body)
	case path == "/api/sessions":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.handleStart(ctx, logger)
	case path == "/api/warehouse-config":
		switch method {
		case http.MethodGet:
			return h.handleGetConfig(ctx, logger)
		case http.MethodPost:
			return h.handleSaveConfig(ctx, logger, req.Body)
		}
		return methodNotAllowed()
	case path == "/api/visualization":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.handleVisualization(ctx, logger, req.QueryStringParameters["sessionId"])
	case path == "/api/export":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.handleRenderExport(ctx, logger)
	case strings.HasPrefix(path, exportPathPrefix):
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		id := req.PathParameters["id"]
		if id == "" {
			id = strings.TrimPrefix(path, exportPathPrefix)
		}
		return h.handleFetchExport(ctx, logger, id)
	}
	return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"})
}

func (h *Handler) handleChat(ctx context.Context, logger *slog.Logger, body string) events.APIGatewayProxyResponse {
	var in chatRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return invalidBody(logger, err)
	}
	out, err := h.chat.Chat(ctx, usecase.ChatInput{SessionID: in.SessionID, Message: in.Message})
	if err != nil {
		return h.errorResponse(logger, err)
	}

	resp := toChatResponse(out)
	if out.Completed {
		if v, ok := h.views.View(out.SessionID); ok {
			resp.Visualization = &v
		}
	}
	return jsonResponse(http.StatusOK, resp)
}

func (h *Handler) handleStart(ctx context.Context, logger *slog.Logger) events.APIGatewayProxyResponse {
	out, err := h.chat.Start(ctx)
	if err != nil {
		return h.errorResponse(logger, err)
	}
	return jsonResponse(http.StatusCreated, toChatResponse(out))
}

func (h *Handler) handleGetConfig(ctx context.Context, logger *slog.Logger) events.APIGatewayProxyResponse {
	attrs, found, err := h.config.Get(ctx)
	if err != nil {
		return h.errorResponse(logger, err)
	}
	if !found {
		return jsonResponse(http.StatusOK, messageBody{Message: "No configuration found"})
	}
	return jsonResponse(http.StatusOK, attrs)
}

func (h *Handler) handleSaveConfig(ctx context.Context, logger *slog.Logger, body string) events.APIGatewayProxyResponse {
	var attrs domain.Attributes
	if err := json.Unmarshal([]byte(body), &attrs); err != nil {
		return invalidBody(logger, err)
	}
	if err := h.config.Save(ctx, attrs); err != nil {
		return h.errorResponse(logger, err)
	}
	return jsonResponse(http.StatusOK, messageBody{Message: "Configuration saved successfully"})
}

// handleVisualization prefers the view rendered for a completed session and
// otherwise renders the saved configuration.
func (h *Handler) handleVisualization(ctx context.Context, logger *slog.Logger, sessionID string) events.APIGatewayProxyResponse {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		if v, ok := h.views.View(sessionID); ok {
			return jsonResponse(http.StatusOK, v)
		}
	}
	attrs, found, err := h.config.Get(ctx)
	if err != nil {
		return h.errorResponse(logger, err)
	}
	if !found {
		return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "no_configuration"})
	}
	return jsonResponse(http.StatusOK, visualization.Build(attrs))
}

func (h *Handler) handleRenderExport(ctx context.Context, logger *slog.Logger) events.APIGatewayProxyResponse {
	out, err := h.export.Render(ctx)
	if err != nil {
		return h.errorResponse(logger, err)
	}
	return jsonResponse(http.StatusCreated, exportResponse{
		ID:       out.ID,
		FileName: out.FileName,
		URL:      exportPathPrefix + out.ID,
	})
}

func (h *Handler) handleFetchExport(ctx context.Context, logger *slog.Logger, id string) events.APIGatewayProxyResponse {
	a, err := h.export.Fetch(ctx, id)
	if err != nil {
		return h.errorResponse(logger, err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":        a.ContentType,
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", a.FileName),
		},
		Body:            base64.StdEncoding.EncodeToString(a.Content),
		IsBase64Encoded: true,
	}
}

func (h *Handler) errorResponse(logger *slog.Logger, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.Error("unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
	}

	status := statusFor(ucErr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		logger.Warn("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}
	return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidQuestion:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func toChatResponse(out usecase.ChatOutput) chatResponse {
	return chatResponse{
		SessionID: out.SessionID,
		Message: messageResponse{
			ID:        out.Reply.ID,
			Role:      string(out.Reply.Origin),
			Content:   out.Reply.Text,
			Timestamp: out.Reply.CreatedAt,
		},
		Attributes: out.Attributes,
		Completed:  out.Completed,
		Fallback:   out.Fallback,
		Warnings:   out.Warnings,
	}
}

func invalidBody(logger *slog.Logger, err error) events.APIGatewayProxyResponse {
	logger.Warn("invalid request body", "err", err)
	return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
}

func methodNotAllowed() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"})
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
