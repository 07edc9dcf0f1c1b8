// Package report serializes a completed scan for machine consumption.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml in any case. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported report format %q (want json or yaml)", s)
	}
}

// Write encodes result to w.
func Write(w io.Writer, result *types.ScanResult, format Format) error {
	if result == nil {
		return fmt.Errorf("no scan result to write")
	}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		// payloads are markup; keep them readable
		enc.SetEscapeHTML(false)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteFile writes the report to path, replacing any existing file.
func WriteFile(path string, result *types.ScanResult, format Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Write(f, result, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
