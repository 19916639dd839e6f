package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tour-planner/internal/planner"
)

//go:embed policy.yml
var defaultPolicy []byte

// LoadPolicy returns the embedded planner policy, overlaid with the YAML file
// at path when path is not empty. Keys missing from the file keep their
// default value; a hubs list replaces the default hubs.
func LoadPolicy(path string) (planner.Policy, error) {
	p := planner.DefaultPolicy()
	if err := yaml.Unmarshal(defaultPolicy, &p); err != nil {
		return planner.Policy{}, fmt.Errorf("embedded policy: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return planner.Policy{}, fmt.Errorf("read policy: %w", err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return planner.Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
		}
	}
	if err := validator.New().Struct(p); err != nil {
		return planner.Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}
