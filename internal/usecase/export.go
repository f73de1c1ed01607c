package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"warehouse-wizard/internal/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Renderer turns a configuration into a spreadsheet document.
type Renderer interface {
	Render(attrs domain.Attributes) ([]byte, error)
}

type ArtifactStore interface {
	PutArtifact(ctx context.Context, a domain.Artifact) error
	GetArtifact(ctx context.Context, id string) (domain.Artifact, error)
}

// ExportService renders the saved configuration and serves the result.
type ExportService struct {
	config    ConfigStore
	renderer  Renderer
	artifacts ArtifactStore
}

type ExportOutput struct {
	ID       string
	FileName string
}

func NewExportService(config ConfigStore, renderer Renderer, artifacts ArtifactStore) (*ExportService, error) {
	if config == nil {
		return nil, errors.New("usecase: config store must not be nil")
	}
	if renderer == nil {
		return nil, errors.New("usecase: renderer must not be nil")
	}
	if artifacts == nil {
		return nil, errors.New("usecase: artifact store must not be nil")
	}
	return &ExportService{config: config, renderer: renderer, artifacts: artifacts}, nil
}

// Render exports the saved configuration and returns a handle to fetch it.
func (s *ExportService) Render(ctx context.Context) (ExportOutput, error) {
	attrs, err := s.config.LoadConfig(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoConfiguration) {
			return ExportOutput{}, newError(ErrorNotFound, "no_configuration", err)
		}
		return ExportOutput{}, newError(ErrorInternal, "config_read_error", err)
	}

	content, err := s.renderer.Render(attrs)
	if err != nil {
		return ExportOutput{}, newError(ErrorInternal, "export_render_error", err)
	}

	now := time.Now().UTC()
	artifact := domain.Artifact{
		ID:          newUUID(),
		FileName:    fmt.Sprintf("warehouse-config-%s.xlsx", now.Format("20060102-150405")),
		ContentType: xlsxContentType,
		Content:     content,
		CreatedAt:   now,
	}
	if err := s.artifacts.PutArtifact(ctx, artifact); err != nil {
		return ExportOutput{}, newError(ErrorInternal, "export_write_error", err)
	}
	return ExportOutput{ID: artifact.ID, FileName: artifact.FileName}, nil
}

// Fetch returns a previously rendered export.
func (s *ExportService) Fetch(ctx context.Context, id string) (domain.Artifact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Artifact{}, newError(ErrorInvalidInput, "empty_export_id", nil)
	}
	a, err := s.artifacts.GetArtifact(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			return domain.Artifact{}, newError(ErrorNotFound, "export_not_found", err)
		}
		return domain.Artifact{}, newError(ErrorInternal, "export_read_error", err)
	}
	return a, nil
}
