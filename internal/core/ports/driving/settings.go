package driving

import (
	"context"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// Set updates a single dotted key, e.g. "embedding.model".
	Set(key, value string) error

	// Keys lists the recognised settings keys with their current values.
	Keys() (map[string]string, error)

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// ValidateConnectivity checks the endpoint and that both models are installed.
	ValidateConnectivity(ctx context.Context) error
}
