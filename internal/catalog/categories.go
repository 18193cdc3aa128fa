package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategoriesYAML []byte

// DefaultCategories returns the storefront category ids a fresh category
// registry is seeded with.
func DefaultCategories() (map[string]int, error) {
	categories := make(map[string]int)
	if err := yaml.Unmarshal(defaultCategoriesYAML, &categories); err != nil {
		return nil, fmt.Errorf("failed to parse default categories: %w", err)
	}
	return categories, nil
}
