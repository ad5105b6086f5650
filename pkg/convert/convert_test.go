package convert

import (
	"encoding/json"
	"testing"

	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/sbom"
)

func typePtr(s string) *string { return &s }

// testDocument is a small realistic resolution: one version, one
// direct dependency, one classified vulnerability on the root.
func testDocument() *sbom.Document {
	return &sbom.Document{
		Name: "nginx",
		Versions: []sbom.VersionRecord{{
			VersionID: "1.21.0",
			Dependencies: []sbom.DependencyEdge{{
				Name:            "zlib",
				VersionID:       "1.2.11",
				Dependencies:    []sbom.DependencyEdge{},
				Vulnerabilities: []sbom.VulnerabilityRecord{},
			}},
			Vulnerabilities: []sbom.VulnerabilityRecord{{
				ID:   "CVE-2021-23017",
				URI:  "https://example.org/vuln/CVE-2021-23017",
				Type: typePtr("CWE-22"),
			}},
		}},
		GeneratedAt: "2026-08-21T10:00:00Z",
		Tool:        sbom.Tool{Name: "Secure-Chain SBOM Generator", Version: "1.0.0"},
	}
}

// diamondDocument has libx reachable under both liba and libb.
func diamondDocument() *sbom.Document {
	libx := sbom.DependencyEdge{
		Name:            "libx",
		VersionID:       "1.0",
		Dependencies:    []sbom.DependencyEdge{},
		Vulnerabilities: []sbom.VulnerabilityRecord{},
	}
	return &sbom.Document{
		Name: "app",
		Versions: []sbom.VersionRecord{{
			VersionID: "1.0",
			Dependencies: []sbom.DependencyEdge{
				{
					Name:            "liba",
					VersionID:       "1.0",
					Dependencies:    []sbom.DependencyEdge{libx},
					Vulnerabilities: []sbom.VulnerabilityRecord{},
				},
				{
					Name:            "libb",
					VersionID:       "1.0",
					Dependencies:    []sbom.DependencyEdge{libx},
					Vulnerabilities: []sbom.VulnerabilityRecord{},
				},
			},
			Vulnerabilities: []sbom.VulnerabilityRecord{},
		}},
		GeneratedAt: "2026-08-21T10:00:00Z",
		Tool:        sbom.Tool{Name: "Secure-Chain SBOM Generator", Version: "1.0.0"},
	}
}

// decode parses converter output into a generic map for shape checks.
func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	return m
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"  spdx  ", FormatSPDX, false},
		{"cyclonedx", FormatCycloneDX, false},
		{"CycloneDX", FormatCycloneDX, false},
		{"cdx", FormatCycloneDX, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				if !errors.IsInvalidInput(err) {
					t.Errorf("kind = %v, want invalid_input", errors.GetKind(err))
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatSPDX, FormatCycloneDX} {
		conv, err := New(format)
		if err != nil {
			t.Fatalf("New(%q) error = %v", format, err)
		}
		if conv.Name() != format {
			t.Errorf("Name() = %q, want %q", conv.Name(), format)
		}
		if conv.ContentType() == "" {
			t.Errorf("%q has no content type", format)
		}
	}

	if _, err := New(Format("yaml")); err == nil {
		t.Error("New(yaml) should fail")
	}
}

func TestFormats(t *testing.T) {
	formats := Formats()
	if len(formats) != 3 {
		t.Fatalf("got %d formats, want 3", len(formats))
	}
	if formats[0] != "json" {
		t.Errorf("formats = %v", formats)
	}
}

func TestRender(t *testing.T) {
	data, err := Render(testDocument(), "cyclonedx")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if m := decode(t, data); m["bomFormat"] != "CycloneDX" {
		t.Errorf("bomFormat = %v", m["bomFormat"])
	}

	if _, err := Render(testDocument(), "docx"); err == nil {
		t.Error("Render(docx) should fail")
	} else if !errors.IsInvalidInput(err) {
		t.Errorf("kind = %v, want invalid_input", errors.GetKind(err))
	}
}
