// Package corpus reads CNTK-Text-Format (CTF) corpora and serves shuffled,
// size-bounded minibatches of sparse one-hot sequences to the trainer.
package corpus

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

//go:embed streams.yaml
var defaultStreamsYAML []byte

// StreamDef declares one named stream of a CTF corpus: the field tag it is
// read from and the width of its sparse one-hot encoding.
type StreamDef struct {
	Name  string `yaml:"name"`
	Field string `yaml:"field"`
	Width int    `yaml:"width"`
}

// StreamDefs is the set of streams a reader extracts from a corpus file.
type StreamDefs []StreamDef

// Validate checks that stream names and fields are unique and widths positive.
func (defs StreamDefs) Validate() error {
	if len(defs) == 0 {
		return fmt.Errorf("no streams defined")
	}
	names := make(map[string]bool, len(defs))
	fields := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.Name == "" || def.Field == "" {
			return fmt.Errorf("stream definition missing name or field: %+v", def)
		}
		if def.Width <= 0 {
			return fmt.Errorf("stream %q has invalid width %d", def.Name, def.Width)
		}
		if names[def.Name] {
			return fmt.Errorf("duplicate stream name %q", def.Name)
		}
		if fields[def.Field] {
			return fmt.Errorf("duplicate stream field %q", def.Field)
		}
		names[def.Name] = true
		fields[def.Field] = true
	}
	return nil
}

// byField indexes the definitions by their CTF field tag.
func (defs StreamDefs) byField() map[string]StreamDef {
	m := make(map[string]StreamDef, len(defs))
	for _, def := range defs {
		m[def.Field] = def
	}
	return m
}

// DefaultATISStreams returns the stream schema of the ATIS language
// understanding corpus: query tokens (S0), intent labels (S1) and slot
// labels (S2), loaded from the embedded schema file.
func DefaultATISStreams() (StreamDefs, error) {
	var doc struct {
		Streams []StreamDef `yaml:"streams"`
	}
	if err := yaml.Unmarshal(defaultStreamsYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse embedded stream schema: %w", err)
	}
	defs := StreamDefs(doc.Streams)
	if err := defs.Validate(); err != nil {
		return nil, fmt.Errorf("embedded stream schema: %w", err)
	}
	return defs, nil
}
