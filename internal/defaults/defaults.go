// Package defaults provides the compiled-in store document.
package defaults

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stonewallbooks/storefront/internal/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	parseOnce sync.Once
	parsed    domain.StoreDocument
	parseErr  error
)

// Load returns a fresh copy of the compiled-in store document.
func Load() (domain.StoreDocument, error) {
	parseOnce.Do(func() {
		parsed, parseErr = Parse(defaultsYAML)
	})
	if parseErr != nil {
		return domain.StoreDocument{}, parseErr
	}
	return parsed.Clone(), nil
}

// MustLoad is like Load but panics if the embedded document is invalid.
func MustLoad() domain.StoreDocument {
	doc, err := Load()
	if err != nil {
		panic(err)
	}
	return doc
}

// Parse decodes a YAML store document. The YAML is routed through JSON so the
// domain types only need their json tags.
func Parse(data []byte) (domain.StoreDocument, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return domain.StoreDocument{}, fmt.Errorf("parse defaults yaml: %w", err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return domain.StoreDocument{}, fmt.Errorf("encode defaults: %w", err)
	}

	var doc domain.StoreDocument
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return domain.StoreDocument{}, fmt.Errorf("decode defaults: %w", err)
	}
	return doc, nil
}
