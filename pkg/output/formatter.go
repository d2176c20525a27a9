// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package output renders command results for the CLI.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Formatter renders values as YAML or JSON.
type Formatter struct {
	format string
}

// NewFormatter creates a formatter. An empty format means YAML.
func NewFormatter(format string) (*Formatter, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatYAML, "yml":
		return &Formatter{format: FormatYAML}, nil
	case FormatJSON:
		return &Formatter{format: FormatJSON}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Format returns the rendered form of v.
func (f *Formatter) Format(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders v to w.
func (f *Formatter) Write(w io.Writer, v any) error {
	if f.format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
