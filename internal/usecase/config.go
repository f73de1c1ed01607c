package usecase

import (
	"context"
	"errors"

	"warehouse-wizard/internal/domain"
)

type ConfigStore interface {
	ConfigSaver
	LoadConfig(ctx context.Context) (domain.Attributes, error)
}

// ConfigService reads and writes the saved warehouse configuration.
type ConfigService struct {
	store ConfigStore
}

func NewConfigService(store ConfigStore) (*ConfigService, error) {
	if store == nil {
		return nil, errors.New("usecase: config store must not be nil")
	}
	return &ConfigService{store: store}, nil
}

// Get returns the saved configuration. found is false when nothing has been
// saved yet.
func (s *ConfigService) Get(ctx context.Context) (attrs domain.Attributes, found bool, err error) {
	attrs, err = s.store.LoadConfig(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoConfiguration) {
			return domain.Attributes{}, false, nil
		}
		return domain.Attributes{}, false, newError(ErrorInternal, "config_read_error", err)
	}
	return attrs, true, nil
}

// Save replaces the saved configuration. The last write wins.
func (s *ConfigService) Save(ctx context.Context, attrs domain.Attributes) error {
	if err := attrs.Validate(); err != nil {
		return newError(ErrorInvalidInput, "invalid_configuration", err)
	}
	if err := s.store.SaveConfig(ctx, attrs); err != nil {
		return newError(ErrorInternal, "config_write_error", err)
	}
	return nil
}
