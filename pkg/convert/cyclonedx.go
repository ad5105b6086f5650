package convert

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/sbom"
)

const (
	cdxBOMFormat   = "CycloneDX"
	cdxSpecVersion = "1.3"
	cdxToolVendor  = "SecureChain"
	cdxPURLPrefix  = "pkg:generic/"
)

// CycloneDXConverter renders documents in CycloneDX 1.3 JSON shape.
//
// A component reachable through several paths is emitted once, keyed
// by name and version, but every parent still references it from its
// own dependency list. Vulnerability classifications of the CWE-N form
// become numeric cwes entries; any other classification fails the
// conversion.
type CycloneDXConverter struct{}

var _ Converter = (*CycloneDXConverter)(nil)

func (c *CycloneDXConverter) Name() Format { return FormatCycloneDX }

func (c *CycloneDXConverter) ContentType() string { return "application/vnd.cyclonedx+json" }

func (c *CycloneDXConverter) Convert(doc *sbom.Document) ([]byte, error) {
	out := &cdxDocument{
		BOMFormat:    cdxBOMFormat,
		SpecVersion:  cdxSpecVersion,
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Version:      1,
		Metadata: cdxMetadata{
			Timestamp: time.Now().Format(time.RFC3339),
			Tools: []cdxTool{{
				Vendor:  cdxToolVendor,
				Name:    doc.Tool.Name,
				Version: doc.Tool.Version,
			}},
		},
		Components:      []cdxComponent{},
		Vulnerabilities: []cdxVulnerability{},
	}

	seen := make(map[string]struct{})
	for _, version := range doc.Versions {
		if err := addComponent(out, seen, doc.Name, version.VersionID, version.Dependencies, version.Vulnerabilities); err != nil {
			return nil, err
		}
		if err := walkComponents(out, seen, version.Dependencies); err != nil {
			return nil, err
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errors.E(errors.KindSerialization, "convert.CycloneDX", "encode document", err)
	}
	return data, nil
}

func walkComponents(out *cdxDocument, seen map[string]struct{}, edges []sbom.DependencyEdge) error {
	for _, edge := range edges {
		if err := addComponent(out, seen, edge.Name, edge.VersionID, edge.Dependencies, edge.Vulnerabilities); err != nil {
			return err
		}
		if err := walkComponents(out, seen, edge.Dependencies); err != nil {
			return err
		}
	}
	return nil
}

func addComponent(out *cdxDocument, seen map[string]struct{}, name, version string, children []sbom.DependencyEdge, vulns []sbom.VulnerabilityRecord) error {
	ref := name + "@" + version
	if _, ok := seen[ref]; ok {
		return nil
	}
	seen[ref] = struct{}{}

	component := cdxComponent{
		Type:         "library",
		Name:         name,
		Version:      version,
		PURL:         cdxPURLPrefix + ref,
		BOMRef:       ref,
		Dependencies: childRefs(children),
	}

	for _, vuln := range vulns {
		entry := cdxVulnerability{
			ID:      vuln.ID,
			Affects: []cdxRef{{Ref: ref}},
		}
		if vuln.Type != nil {
			n, err := parseCWE(vuln.ID, *vuln.Type)
			if err != nil {
				return err
			}
			entry.CWEs = []int{n}
		}
		out.Vulnerabilities = append(out.Vulnerabilities, entry)
	}

	out.Components = append(out.Components, component)
	return nil
}

// childRefs returns the bom-refs of the direct children, nil when the
// node has none so the dependencies key is omitted entirely.
func childRefs(edges []sbom.DependencyEdge) []cdxRef {
	if len(edges) == 0 {
		return nil
	}
	refs := make([]cdxRef, 0, len(edges))
	for _, edge := range edges {
		refs = append(refs, cdxRef{Ref: edge.Name + "@" + edge.VersionID})
	}
	return refs
}

// parseCWE extracts the numeric identifier from a CWE-N classification.
func parseCWE(vulnID, classification string) (int, error) {
	raw := strings.TrimPrefix(classification, "CWE-")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.E(errors.KindSerialization, "convert.CycloneDX",
			fmt.Sprintf("vulnerability %s has malformed classification %q", vulnID, classification))
	}
	return n, nil
}

// =============================================================================
// CycloneDX 1.3 document shape (wire structs)
// =============================================================================

type cdxDocument struct {
	BOMFormat       string             `json:"bomFormat"`
	SpecVersion     string             `json:"specVersion"`
	SerialNumber    string             `json:"serialNumber"`
	Version         int                `json:"version"`
	Metadata        cdxMetadata        `json:"metadata"`
	Components      []cdxComponent     `json:"components"`
	Vulnerabilities []cdxVulnerability `json:"vulnerabilities"`
}

type cdxMetadata struct {
	Timestamp string    `json:"timestamp"`
	Tools     []cdxTool `json:"tools"`
}

type cdxTool struct {
	Vendor  string `json:"vendor"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type cdxComponent struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version"`
	PURL    string `json:"purl"`
	BOMRef  string `json:"bom-ref"`

	// Dependencies holds the bom-refs of the direct children only.
	Dependencies []cdxRef `json:"dependencies,omitempty"`
}

type cdxVulnerability struct {
	ID      string   `json:"id"`
	Affects []cdxRef `json:"affects"`
	CWEs    []int    `json:"cwes,omitempty"`
}

type cdxRef struct {
	Ref string `json:"ref"`
}
