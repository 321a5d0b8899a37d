package bootstrap

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nexuscrm/kernel/internal/domain/schema"
)

//go:embed system_tables.yaml
var systemTablesYAML []byte

// SystemTableDefinitions returns the definitions of every system table,
// loaded from the embedded YAML file.
func SystemTableDefinitions() ([]schema.TableDefinition, error) {
	var defs []schema.TableDefinition
	if err := yaml.Unmarshal(systemTablesYAML, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse system_tables.yaml: %w", err)
	}
	return defs, nil
}
