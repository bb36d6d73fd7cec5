package legitimacy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var builtinPatterns []byte

// Patterns is the versioned name-pattern data set.
type Patterns struct {
	Version       int        `yaml:"version"`
	Legitimate    PatternSet `yaml:"legitimate"`
	HighThreshold PatternSet `yaml:"high_threshold"`
}

// PatternSet holds regular expressions and plain substrings for one class.
type PatternSet struct {
	Patterns  []string `yaml:"patterns"`
	Fragments []string `yaml:"fragments"`
}

// DefaultPatterns returns the embedded pattern data.
func DefaultPatterns() (*Patterns, error) {
	return ParsePatterns(builtinPatterns)
}

// LoadPatterns reads pattern data from a YAML file.
func LoadPatterns(path string) (*Patterns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns: %w", err)
	}
	return ParsePatterns(data)
}

// ParsePatterns decodes pattern YAML.
func ParsePatterns(data []byte) (*Patterns, error) {
	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}
	return &p, nil
}
