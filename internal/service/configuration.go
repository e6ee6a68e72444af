package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// ConfigurationService reads and switches the default assessment period.
type ConfigurationService struct {
	repos Repos
}

// NewConfigurationService creates a ConfigurationService.
func NewConfigurationService(repos Repos) *ConfigurationService {
	return &ConfigurationService{repos: repos}
}

// Default returns the configuration currently in force.
func (s *ConfigurationService) Default(ctx context.Context) (*domain.Configuration, error) {
	c, err := s.repos.Configurations.Default(ctx)
	if err != nil {
		return nil, fmt.Errorf("default configuration: %w", err)
	}
	return c, nil
}

// SetDefault makes name the only default configuration.
func (s *ConfigurationService) SetDefault(ctx context.Context, name string) error {
	err := s.repos.InTx(ctx, func(tx Repos) error {
		if _, err := tx.Configurations.GetByName(ctx, name); err != nil {
			return fmt.Errorf("get configuration %q: %w", name, err)
		}
		return tx.Configurations.SetDefault(ctx, name)
	})
	if err != nil {
		return err
	}
	logger.Info("default configuration changed", zap.String("name", name))
	return nil
}

// Save creates or replaces a configuration, validating its due date.
func (s *ConfigurationService) Save(ctx context.Context, c *domain.Configuration) error {
	if _, err := c.SubmissionDueDate(); err != nil {
		return err
	}
	if err := s.repos.Configurations.Upsert(ctx, c); err != nil {
		return fmt.Errorf("save configuration %q: %w", c.Name, err)
	}
	return nil
}
