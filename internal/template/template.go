package template

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is the part of every metadata record shared across the collection
type Template struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Attributes  []Attribute `yaml:"attributes"`
}

// Attribute follows the common NFT trait layout
type Attribute struct {
	TraitType   string `yaml:"trait_type" json:"trait_type,omitempty"`
	Value       any    `yaml:"value" json:"value"`
	DisplayType string `yaml:"display_type,omitempty" json:"display_type,omitempty"`
}

// Load reads a template from a YAML file
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML template
func Parse(data []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Validate checks the fields every record needs
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("template name is required")
	}
	for i, attr := range t.Attributes {
		if attr.Value == nil {
			return fmt.Errorf("template attribute %d has no value", i)
		}
	}
	return nil
}

// Expand substitutes the per-item placeholders {{index}} and {{number}}
func Expand(s string, index int) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	r := strings.NewReplacer(
		"{{index}}", strconv.Itoa(index),
		"{{number}}", strconv.Itoa(index+1),
	)
	return r.Replace(s)
}
