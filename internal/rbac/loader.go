package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bolsa-empleo/portal/internal/shared"
)

type rulesFile struct {
	Rules []struct {
		Prefix string   `yaml:"prefix"`
		Roles  []string `yaml:"roles"`
	} `yaml:"rules"`
}

// LoadRules reads a YAML rule table. Rules keep their file order:
//
//	rules:
//	  - prefix: /admin
//	    roles: ["Administrador Empresa"]
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("rbac: read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table.
func ParseRules(data []byte) (Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("rbac: decode rules: %w", err)
	}
	rules := make([]RouteRule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		roles := make([]shared.Role, 0, len(entry.Roles))
		for _, raw := range entry.Roles {
			role, err := shared.ParseRole(raw)
			if err != nil {
				return Rules{}, fmt.Errorf("%w: rule %d (%s): %w", ErrInvalidRule, i, entry.Prefix, err)
			}
			roles = append(roles, role)
		}
		rules = append(rules, RouteRule{Prefix: entry.Prefix, Roles: roles})
	}
	return NewRules(rules)
}
