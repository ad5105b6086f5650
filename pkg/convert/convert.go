// Package convert renders resolved SBOM documents into interchange
// formats: plain JSON, SPDX 2.2 and CycloneDX 1.3.
package convert

import (
	"fmt"
	"strings"

	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/metrics"
	"github.com/securechain/sbomgen/pkg/sbom"
)

// Format identifies an output format.
type Format string

const (
	FormatJSON      Format = "json"
	FormatSPDX      Format = "spdx"
	FormatCycloneDX Format = "cyclonedx"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "spdx":
		return FormatSPDX, nil
	case "cyclonedx", "cdx":
		return FormatCycloneDX, nil
	default:
		return "", errors.E(errors.KindInvalidInput, "convert.ParseFormat",
			fmt.Sprintf("unknown format %q (want json, spdx or cyclonedx)", name))
	}
}

// Formats lists the supported format names.
func Formats() []string {
	return []string{string(FormatJSON), string(FormatSPDX), string(FormatCycloneDX)}
}

// Converter renders a document into one output format.
type Converter interface {
	// Name returns the format the converter produces.
	Name() Format

	// ContentType returns the MIME type of the produced output.
	ContentType() string

	// Convert renders the document.
	Convert(doc *sbom.Document) ([]byte, error)
}

// New returns the converter for the given format.
func New(format Format) (Converter, error) {
	switch format {
	case FormatJSON:
		return &JSONConverter{}, nil
	case FormatSPDX:
		return &SPDXConverter{}, nil
	case FormatCycloneDX:
		return &CycloneDXConverter{}, nil
	default:
		return nil, errors.E(errors.KindInvalidInput, "convert.New",
			fmt.Sprintf("unknown format %q", format))
	}
}

// Render resolves the format name and renders doc with it.
func Render(doc *sbom.Document, formatName string) ([]byte, error) {
	format, err := ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	conv, err := New(format)
	if err != nil {
		return nil, err
	}

	collector := metrics.GetDefaultCollector()
	data, err := conv.Convert(doc)
	if err != nil {
		collector.CounterInc(metrics.DocumentsTotal.Name, "format", string(format), "status", "error")
		return nil, err
	}
	collector.CounterInc(metrics.DocumentsTotal.Name, "format", string(format), "status", "ok")
	return data, nil
}
