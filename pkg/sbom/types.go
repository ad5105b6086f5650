package sbom

// Tool identifies the generator stamped into produced documents.
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// VulnerabilityRecord is one known vulnerability of a component
// version.
type VulnerabilityRecord struct {
	// ID is the public identifier, typically a CVE.
	ID string `json:"id"`

	// URI is the graph node the record was resolved from.
	URI string `json:"uri"`

	// Type is the trailing segment of the classification URI, e.g.
	// "CWE-79". Nil when the graph carries no classification, which
	// is distinct from an empty string.
	Type *string `json:"type,omitempty"`
}

// DependencyEdge is one resolved dependency, including its own
// transitive subtree. The model is a tree, not a graph: a component
// reachable via two paths gets a node per path.
type DependencyEdge struct {
	Name            string                `json:"name"`
	VersionID       string                `json:"version_id"`
	Dependencies    []DependencyEdge      `json:"dependencies"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
}

// VersionRecord is one resolved version of the root component.
type VersionRecord struct {
	VersionID       string                `json:"version_id"`
	Dependencies    []DependencyEdge      `json:"dependencies"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
}

// Document is the resolved SBOM for one component.
type Document struct {
	Name        string          `json:"name"`
	Versions    []VersionRecord `json:"versions"`
	GeneratedAt string          `json:"generated_at"`
	Tool        Tool            `json:"tool"`
}

// NodeCount returns the number of resolved nodes in the document: one
// per root version plus one per dependency edge.
func (d *Document) NodeCount() int {
	count := 0
	for _, version := range d.Versions {
		count++
		count += countEdges(version.Dependencies)
	}
	return count
}

// VulnerabilityCount returns the number of vulnerability records
// across the whole document.
func (d *Document) VulnerabilityCount() int {
	count := 0
	for _, version := range d.Versions {
		count += len(version.Vulnerabilities)
		count += countVulns(version.Dependencies)
	}
	return count
}

func countEdges(edges []DependencyEdge) int {
	count := 0
	for _, edge := range edges {
		count++
		count += countEdges(edge.Dependencies)
	}
	return count
}

func countVulns(edges []DependencyEdge) int {
	count := 0
	for _, edge := range edges {
		count += len(edge.Vulnerabilities)
		count += countVulns(edge.Dependencies)
	}
	return count
}
