package bootstrap

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/pkg/models"
)

//go:embed system_data.yaml
var systemDataYAML []byte

// SystemData is the seed data every installation starts with.
type SystemData struct {
	Profiles []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"profiles"`
}

// InitializeSystemData upserts the system profiles. Running it again leaves
// the same rows.
func InitializeSystemData(ctx context.Context, sm *services.ServiceManager, logger *zap.Logger) error {
	logger.Info("🔧 Initializing system data...")

	var data SystemData
	if err := yaml.Unmarshal(systemDataYAML, &data); err != nil {
		return fmt.Errorf("failed to parse system_data.yaml: %w", err)
	}

	for _, p := range data.Profiles {
		desc := p.Description
		profile := &models.Profile{
			ID:          p.ID,
			Name:        p.Name,
			Description: &desc,
			IsActive:    true,
			IsSystem:    true,
		}
		if err := sm.Permissions.SaveProfile(ctx, profile); err != nil {
			return fmt.Errorf("failed to seed profile %s: %w", p.ID, err)
		}
	}

	logger.Info("✅ System profiles ensured", zap.Int("profiles", len(data.Profiles)))
	return nil
}
