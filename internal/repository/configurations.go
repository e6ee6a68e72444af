package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// ConfigurationRepository persists assessment period configurations.
type ConfigurationRepository struct {
	db DBTX
}

const configurationColumns = `id, name, is_default, config_data, created_at`

func scanConfiguration(row pgx.Row) (*domain.Configuration, error) {
	var (
		c    domain.Configuration
		data []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.IsDefault, &data, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeConfigurationNotFound, "configuration not found")
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &c.ConfigData); err != nil {
		return nil, fmt.Errorf("decode config_data for %s: %w", c.Name, err)
	}
	return &c, nil
}

// Default returns the default configuration.
func (r *ConfigurationRepository) Default(ctx context.Context) (*domain.Configuration, error) {
	c, err := scanConfiguration(r.db.QueryRow(ctx,
		`SELECT `+configurationColumns+` FROM configurations WHERE is_default LIMIT 1`))
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeConfigurationNotFound {
			return nil, apperrors.NotFound(apperrors.CodeConfigurationNotFound, "no default configuration")
		}
		return nil, err
	}
	return c, nil
}

// GetByName loads a configuration by name.
func (r *ConfigurationRepository) GetByName(ctx context.Context, name string) (*domain.Configuration, error) {
	return scanConfiguration(r.db.QueryRow(ctx,
		`SELECT `+configurationColumns+` FROM configurations WHERE name = $1`, name))
}

// List returns every configuration ordered by name.
func (r *ConfigurationRepository) List(ctx context.Context) ([]domain.Configuration, error) {
	rows, err := r.db.Query(ctx, `SELECT `+configurationColumns+` FROM configurations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()

	var out []domain.Configuration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Upsert creates or replaces the configuration data stored under c.Name.
// The default flag is only changed through SetDefault.
func (r *ConfigurationRepository) Upsert(ctx context.Context, c *domain.Configuration) error {
	data, err := json.Marshal(c.ConfigData)
	if err != nil {
		return fmt.Errorf("encode config_data: %w", err)
	}
	err = r.db.QueryRow(ctx, `INSERT INTO configurations (name, config_data)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET config_data = EXCLUDED.config_data
		RETURNING id, is_default, created_at`,
		c.Name, data,
	).Scan(&c.ID, &c.IsDefault, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert configuration %s: %w", c.Name, err)
	}
	return nil
}

// SetDefault makes name the only default configuration. Run it inside a
// transaction so the swap is atomic.
func (r *ConfigurationRepository) SetDefault(ctx context.Context, name string) error {
	if _, err := r.db.Exec(ctx, `UPDATE configurations SET is_default = FALSE WHERE is_default AND name <> $1`, name); err != nil {
		return fmt.Errorf("clear default configuration: %w", err)
	}
	tag, err := r.db.Exec(ctx, `UPDATE configurations SET is_default = TRUE WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("set default configuration %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeConfigurationNotFound, fmt.Sprintf("configuration %s not found", name))
	}
	return nil
}
