package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/sbom"
)

const (
	spdxVersion         = "SPDX-2.2"
	spdxDataLicense     = "CC0-1.0"
	spdxLicenseList     = "3.11"
	spdxNamespacePrefix = "https://example.com/sboms/"

	noAssertion = "NOASSERTION"
)

// SPDXConverter renders documents in SPDX 2.2 JSON shape.
//
// The dependency tree flattens into the package list. Packages are
// deduplicated by name and version across the whole document: the
// first occurrence in document order wins, later ones are dropped.
type SPDXConverter struct{}

var _ Converter = (*SPDXConverter)(nil)

func (c *SPDXConverter) Name() Format { return FormatSPDX }

func (c *SPDXConverter) ContentType() string { return "application/spdx+json" }

func (c *SPDXConverter) Convert(doc *sbom.Document) ([]byte, error) {
	out := &spdxDocument{
		SPDXVersion:       spdxVersion,
		DataLicense:       spdxDataLicense,
		SPDXID:            "SPDXRef-DOCUMENT",
		Name:              "SBOM for " + doc.Name,
		DocumentNamespace: spdxNamespacePrefix + uuid.NewString(),
		CreationInfo: spdxCreationInfo{
			Created:            time.Now().Format(time.RFC3339),
			Creators:           []string{"Tool: " + doc.Tool.Name},
			LicenseListVersion: spdxLicenseList,
		},
		Packages: []spdxPackage{},
	}

	seen := make(map[string]struct{})
	for _, version := range doc.Versions {
		addPackage(out, seen, doc.Name, version.VersionID, version.Vulnerabilities)
		walkPackages(out, seen, version.Dependencies)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errors.E(errors.KindSerialization, "convert.SPDX", "encode document", err)
	}
	return data, nil
}

func walkPackages(out *spdxDocument, seen map[string]struct{}, edges []sbom.DependencyEdge) {
	for _, edge := range edges {
		addPackage(out, seen, edge.Name, edge.VersionID, edge.Vulnerabilities)
		walkPackages(out, seen, edge.Dependencies)
	}
}

func addPackage(out *spdxDocument, seen map[string]struct{}, name, version string, vulns []sbom.VulnerabilityRecord) {
	key := name + "@" + version
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}

	pkg := spdxPackage{
		Name:             name,
		SPDXID:           fmt.Sprintf("SPDXRef-Package-%s-%s", name, version),
		VersionInfo:      version,
		DownloadLocation: noAssertion,
		LicenseConcluded: noAssertion,
		LicenseDeclared:  noAssertion,
		CopyrightText:    noAssertion,
		ExternalRefs:     []spdxExternalRef{},
	}
	for _, vuln := range vulns {
		pkg.ExternalRefs = append(pkg.ExternalRefs, spdxExternalRef{
			ReferenceCategory: "SECURITY",
			ReferenceType:     "cve",
			ReferenceLocator:  vuln.ID,
		})
	}
	out.Packages = append(out.Packages, pkg)
}

// =============================================================================
// SPDX 2.2 document shape (wire structs)
// =============================================================================

type spdxDocument struct {
	SPDXVersion       string           `json:"spdxVersion"`
	DataLicense       string           `json:"dataLicense"`
	SPDXID            string           `json:"SPDX-ID"`
	Name              string           `json:"name"`
	DocumentNamespace string           `json:"documentNamespace"`
	CreationInfo      spdxCreationInfo `json:"creationInfo"`
	Packages          []spdxPackage    `json:"packages"`
}

type spdxCreationInfo struct {
	Created            string   `json:"created"`
	Creators           []string `json:"creators"`
	LicenseListVersion string   `json:"licenseListVersion"`
}

type spdxPackage struct {
	Name             string            `json:"name"`
	SPDXID           string            `json:"SPDX-ID"`
	VersionInfo      string            `json:"versionInfo"`
	DownloadLocation string            `json:"downloadLocation"`
	LicenseConcluded string            `json:"licenseConcluded"`
	LicenseDeclared  string            `json:"licenseDeclared"`
	CopyrightText    string            `json:"copyrightText"`
	ExternalRefs     []spdxExternalRef `json:"externalRefs"`
}

type spdxExternalRef struct {
	ReferenceCategory string `json:"referenceCategory"`
	ReferenceType     string `json:"referenceType"`
	ReferenceLocator  string `json:"referenceLocator"`
}
