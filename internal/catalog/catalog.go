// Package catalog embeds the builtin model catalog seeded when a client is
// configured with modelSeed: "builtin" (§4.6). The catalog is authored as
// YAML and parsed with gopkg.in/yaml.v3, preferring declarative config over
// hand-written Go literals for static data tables.
package catalog

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinYAML []byte

// Entry mirrors registry.CatalogEntry's wire shape, duplicated here (rather
// than imported) to keep this package dependency-free of the registry
// package it seeds.
type Entry struct {
	Provider string `yaml:"provider"`
	ID       string `yaml:"id"`
	Plugin   string `yaml:"plugin"`

	Capabilities struct {
		Temperature      bool `yaml:"temperature"`
		Streaming        bool `yaml:"streaming"`
		Tools            bool `yaml:"tools"`
		MaxContextTokens int  `yaml:"maxContextTokens"`
		SupportsImages   bool `yaml:"supportsImages"`
	} `yaml:"capabilities"`
}

// Load decodes the embedded builtin.yaml catalog.
func Load() ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(builtinYAML, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
