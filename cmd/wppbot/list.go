package main

import (
	"errors"
	"fmt"
	"os"

	"wppbot/internal/wpp"

	"gopkg.in/yaml.v3"
)

// loadListOptions reads a list message definition. YAML is a superset of
// JSON, so both file formats work.
func loadListOptions(path string) (*wpp.ListOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read list file: %w", err)
	}
	var opts wpp.ListOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("parse list file %s: %w", path, err)
	}
	if opts.ButtonText == "" {
		return nil, errors.New("list: buttonText is required")
	}
	if len(opts.Sections) == 0 {
		return nil, errors.New("list: at least one section is required")
	}
	for i, sec := range opts.Sections {
		if len(sec.Rows) == 0 {
			return nil, fmt.Errorf("list: section %d has no rows", i)
		}
	}
	return &opts, nil
}
