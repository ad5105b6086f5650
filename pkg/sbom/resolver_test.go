package sbom

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/metrics"
	"github.com/securechain/sbomgen/pkg/sparql"
)

type depEntry struct {
	uri     string
	version string
}

type vulnEntry struct {
	uri     string
	id      string
	typeURI string // empty leaves the optional classification unbound
}

// fakeQuerier answers the three resolver queries from in-memory maps
// and counts calls per query kind. It validates parameters the same
// way the real client does, so rejection of graph-supplied values is
// observable through it.
type fakeQuerier struct {
	mu                 sync.Mutex
	calls              int
	versionCalls       int
	dependencyCalls    int
	vulnerabilityCalls int

	versions map[string][]string   // name -> version ids
	deps     map[string][]depEntry // name:version -> direct dependencies
	vulns    map[string][]vulnEntry
	err      error // when set, every query fails with it
}

func (f *fakeQuerier) Query(ctx context.Context, template string, params map[string]string) (*sparql.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	for name, value := range params {
		if err := sparql.ValidateParam(name, value); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	name := params["software_name"]
	key := name + ":" + params["version_id"]

	switch {
	case strings.Contains(template, "dependsOn"):
		f.dependencyCalls++
		rs := &sparql.ResultSet{Vars: []string{"dependency", "dependencyVersion", "depVersionName"}}
		for _, d := range f.deps[key] {
			rs.Bindings = append(rs.Bindings, sparql.Binding{
				"dependency":        {Type: "uri", Value: d.uri},
				"dependencyVersion": {Type: "uri", Value: d.uri + "/" + d.version},
				"depVersionName":    {Type: "literal", Value: d.version},
			})
		}
		return rs, nil

	case strings.Contains(template, "vulnerableTo"):
		f.vulnerabilityCalls++
		rs := &sparql.ResultSet{Vars: []string{"vulnerability", "vulnId", "vulnType"}}
		for _, v := range f.vulns[key] {
			b := sparql.Binding{
				"vulnerability": {Type: "uri", Value: v.uri},
				"vulnId":        {Type: "literal", Value: v.id},
			}
			if v.typeURI != "" {
				b["vulnType"] = sparql.Term{Type: "uri", Value: v.typeURI}
			}
			rs.Bindings = append(rs.Bindings, b)
		}
		return rs, nil

	default:
		f.versionCalls++
		rs := &sparql.ResultSet{Vars: []string{"version_id"}}
		for _, v := range f.versions[name] {
			rs.Bindings = append(rs.Bindings, sparql.Binding{
				"version_id": {Type: "literal", Value: v},
			})
		}
		return rs, nil
	}
}

func (f *fakeQuerier) totals() (calls, versions, deps, vulns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.versionCalls, f.dependencyCalls, f.vulnerabilityCalls
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxDepth != 10 {
		t.Errorf("MaxDepth = %d, want 10", cfg.MaxDepth)
	}
	if cfg.ToolName != "Secure-Chain SBOM Generator" {
		t.Errorf("ToolName = %q", cfg.ToolName)
	}
	if cfg.ToolVersion != "1.0.0" {
		t.Errorf("ToolVersion = %q", cfg.ToolVersion)
	}
}

func TestResolver_Resolve(t *testing.T) {
	fake := &fakeQuerier{
		versions: map[string][]string{"nginx": {"1.21.0"}},
		deps: map[string][]depEntry{
			"nginx:1.21.0": {{uri: "http://example.org/sw/zlib", version: "1.2.11"}},
		},
		vulns: map[string][]vulnEntry{
			"nginx:1.21.0": {{
				uri:     "https://example.org/vuln/CVE-2021-23017",
				id:      "CVE-2021-23017",
				typeURI: "https://example.org/cwe/CWE-22",
			}},
		},
	}

	r := NewResolver(fake, nil)
	doc, err := r.Resolve(context.Background(), "nginx")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if doc.Name != "nginx" {
		t.Errorf("Name = %q, want nginx", doc.Name)
	}
	if doc.Tool.Name != "Secure-Chain SBOM Generator" || doc.Tool.Version != "1.0.0" {
		t.Errorf("Tool = %+v", doc.Tool)
	}
	if _, err := time.Parse(time.RFC3339, doc.GeneratedAt); err != nil {
		t.Errorf("GeneratedAt %q is not RFC 3339: %v", doc.GeneratedAt, err)
	}

	if len(doc.Versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(doc.Versions))
	}
	v := doc.Versions[0]
	if v.VersionID != "1.21.0" {
		t.Errorf("VersionID = %q", v.VersionID)
	}

	if len(v.Vulnerabilities) != 1 {
		t.Fatalf("got %d vulnerabilities, want 1", len(v.Vulnerabilities))
	}
	vuln := v.Vulnerabilities[0]
	if vuln.ID != "CVE-2021-23017" {
		t.Errorf("vulnerability ID = %q", vuln.ID)
	}
	if vuln.Type == nil || *vuln.Type != "CWE-22" {
		t.Errorf("vulnerability Type = %v, want CWE-22", vuln.Type)
	}

	if len(v.Dependencies) != 1 {
		t.Fatalf("got %d dependencies, want 1", len(v.Dependencies))
	}
	dep := v.Dependencies[0]
	if dep.Name != "zlib" || dep.VersionID != "1.2.11" {
		t.Errorf("dependency = %s %s, want zlib 1.2.11", dep.Name, dep.VersionID)
	}
	if dep.Dependencies == nil || dep.Vulnerabilities == nil {
		t.Error("leaf dependency slices must be non-nil")
	}

	if n := doc.NodeCount(); n != 2 {
		t.Errorf("NodeCount() = %d, want 2", n)
	}
	if n := doc.VulnerabilityCount(); n != 1 {
		t.Errorf("VulnerabilityCount() = %d, want 1", n)
	}
}

func TestResolver_Resolve_InvalidName(t *testing.T) {
	fake := &fakeQuerier{}
	r := NewResolver(fake, nil)

	_, err := r.Resolve(context.Background(), "foo; DROP ALL")
	if err == nil {
		t.Fatal("expected error for injection attempt")
	}
	if !errors.IsInvalidInput(err) {
		t.Errorf("kind = %v, want invalid_input", errors.GetKind(err))
	}
	if calls, _, _, _ := fake.totals(); calls != 0 {
		t.Errorf("querier received %d calls, want 0", calls)
	}
}

func TestResolver_Resolve_EmptyName(t *testing.T) {
	fake := &fakeQuerier{}
	r := NewResolver(fake, nil)

	_, err := r.Resolve(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty name")
	}
	if !errors.IsInvalidInput(err) {
		t.Errorf("kind = %v, want invalid_input", errors.GetKind(err))
	}
}

func TestResolver_Resolve_ZeroVersions(t *testing.T) {
	fake := &fakeQuerier{versions: map[string][]string{}}
	r := NewResolver(fake, nil)

	doc, err := r.Resolve(context.Background(), "unknown-component")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(doc.Versions) != 0 {
		t.Errorf("got %d versions, want 0", len(doc.Versions))
	}
	if calls, _, _, _ := fake.totals(); calls != 1 {
		t.Errorf("querier received %d calls, want 1", calls)
	}
}

// A diamond (app -> libb, libc; both -> libd) is walked once per path:
// libd resolves under both parents, and every visited node costs
// exactly one dependency query and one vulnerability query.
func TestResolver_Resolve_QueryCountPerNode(t *testing.T) {
	fake := &fakeQuerier{
		versions: map[string][]string{"app": {"1.0"}},
		deps: map[string][]depEntry{
			"app:1.0": {
				{uri: "http://example.org/sw/libb", version: "1.0"},
				{uri: "http://example.org/sw/libc", version: "1.0"},
			},
			"libb:1.0": {{uri: "http://example.org/sw/libd", version: "1.0"}},
			"libc:1.0": {{uri: "http://example.org/sw/libd", version: "1.0"}},
		},
	}

	r := NewResolver(fake, nil)
	doc, err := r.Resolve(context.Background(), "app")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	deps := doc.Versions[0].Dependencies
	if len(deps) != 2 {
		t.Fatalf("got %d direct dependencies, want 2", len(deps))
	}
	for _, parent := range deps {
		if len(parent.Dependencies) != 1 || parent.Dependencies[0].Name != "libd" {
			t.Errorf("%s is missing its libd edge", parent.Name)
		}
	}

	_, versions, depCalls, vulnCalls := fake.totals()
	if versions != 1 {
		t.Errorf("version queries = %d, want 1", versions)
	}
	// app, libb, libc, libd under libb, libd under libc.
	if depCalls != 5 {
		t.Errorf("dependency queries = %d, want 5", depCalls)
	}
	// The root version plus the four dependency nodes.
	if vulnCalls != 5 {
		t.Errorf("vulnerability queries = %d, want 5", vulnCalls)
	}
}

func TestResolver_Resolve_CycleTermination(t *testing.T) {
	fake := &fakeQuerier{
		versions: map[string][]string{"liba": {"1.0"}},
		deps: map[string][]depEntry{
			"liba:1.0": {{uri: "http://example.org/sw/libb", version: "1.0"}},
			"libb:1.0": {{uri: "http://example.org/sw/liba", version: "1.0"}},
		},
	}

	r := NewResolver(fake, nil)
	doc, err := r.Resolve(context.Background(), "liba")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	deps := doc.Versions[0].Dependencies
	if len(deps) != 1 || deps[0].Name != "libb" {
		t.Fatalf("liba dependencies = %+v, want [libb]", deps)
	}
	// The back edge to liba closes the cycle and is dropped.
	if len(deps[0].Dependencies) != 0 {
		t.Errorf("libb dependencies = %+v, want none", deps[0].Dependencies)
	}

	_, _, depCalls, _ := fake.totals()
	if depCalls != 2 {
		t.Errorf("dependency queries = %d, want 2", depCalls)
	}
}

func TestResolver_Resolve_DepthLimit(t *testing.T) {
	fake := &fakeQuerier{
		versions: map[string][]string{"liba": {"1.0"}},
		deps: map[string][]depEntry{
			"liba:1.0": {{uri: "http://example.org/sw/libb", version: "1.0"}},
			"libb:1.0": {{uri: "http://example.org/sw/libc", version: "1.0"}},
			"libc:1.0": {{uri: "http://example.org/sw/libd", version: "1.0"}},
			"libd:1.0": {{uri: "http://example.org/sw/libe", version: "1.0"}},
		},
	}

	r := NewResolver(fake, &Config{MaxDepth: 2})
	doc, err := r.Resolve(context.Background(), "liba")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// liba(0) -> libb(1) -> libc(2) -> libd(3, cut): the libd edge is
	// kept but its own dependencies are never queried.
	node := doc.Versions[0].Dependencies[0].Dependencies[0].Dependencies[0]
	if node.Name != "libd" {
		t.Fatalf("deepest node = %q, want libd", node.Name)
	}
	if len(node.Dependencies) != 0 {
		t.Errorf("libd dependencies = %+v, want none past the depth limit", node.Dependencies)
	}

	_, _, depCalls, vulnCalls := fake.totals()
	if depCalls != 3 {
		t.Errorf("dependency queries = %d, want 3", depCalls)
	}
	if vulnCalls != 4 {
		t.Errorf("vulnerability queries = %d, want 4", vulnCalls)
	}
}

func TestResolver_Resolve_QueryErrorAborts(t *testing.T) {
	fake := &fakeQuerier{
		err: errors.E(errors.KindEndpoint, "sparql.Query", "endpoint down"),
	}
	r := NewResolver(fake, nil)

	doc, err := r.Resolve(context.Background(), "nginx")
	if err == nil {
		t.Fatal("expected error")
	}
	if doc != nil {
		t.Error("no partial document on failure")
	}
	if !errors.IsEndpointError(err) {
		t.Errorf("kind = %v, want endpoint_error", errors.GetKind(err))
	}
}

// Versions coming back from the graph go through the same parameter
// validation as user input; a hostile value fails the resolution.
func TestResolver_Resolve_InvalidGraphValueAborts(t *testing.T) {
	fake := &fakeQuerier{
		versions: map[string][]string{"liba": {"1.0"}},
		deps: map[string][]depEntry{
			"liba:1.0": {{uri: "http://example.org/sw/libb", version: "1.0; DROP ALL"}},
		},
	}

	r := NewResolver(fake, nil)
	_, err := r.Resolve(context.Background(), "liba")
	if err == nil {
		t.Fatal("expected error for hostile graph value")
	}
	if !errors.IsInvalidParameter(err) {
		t.Errorf("kind = %v, want invalid_parameter", errors.GetKind(err))
	}
}

func TestResolver_Resolve_VulnerabilityTypeOptional(t *testing.T) {
	fake := &fakeQuerier{
		versions: map[string][]string{"openssl": {"1.1.1k"}},
		vulns: map[string][]vulnEntry{
			"openssl:1.1.1k": {
				{uri: "https://example.org/vuln/CVE-2021-3711", id: "CVE-2021-3711", typeURI: "https://example.org/cwe/CWE-120"},
				{uri: "https://example.org/vuln/CVE-2021-3712", id: "CVE-2021-3712"},
			},
		},
	}

	r := NewResolver(fake, nil)
	doc, err := r.Resolve(context.Background(), "openssl")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	vulns := doc.Versions[0].Vulnerabilities
	if len(vulns) != 2 {
		t.Fatalf("got %d vulnerabilities, want 2", len(vulns))
	}
	if vulns[0].Type == nil || *vulns[0].Type != "CWE-120" {
		t.Errorf("typed vulnerability = %v, want CWE-120", vulns[0].Type)
	}
	if vulns[1].Type != nil {
		t.Errorf("untyped vulnerability Type = %q, want nil", *vulns[1].Type)
	}
}

func TestResolver_Resolve_MultipleVersions(t *testing.T) {
	fake := &fakeQuerier{
		versions: map[string][]string{"zlib": {"1.2.11", "1.2.12"}},
		vulns: map[string][]vulnEntry{
			"zlib:1.2.11": {{uri: "https://example.org/vuln/CVE-2018-25032", id: "CVE-2018-25032"}},
		},
	}

	r := NewResolver(fake, nil)
	doc, err := r.Resolve(context.Background(), "zlib")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(doc.Versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(doc.Versions))
	}
	if len(doc.Versions[0].Vulnerabilities) != 1 {
		t.Errorf("1.2.11 vulnerabilities = %d, want 1", len(doc.Versions[0].Vulnerabilities))
	}
	if len(doc.Versions[1].Vulnerabilities) != 0 {
		t.Errorf("1.2.12 vulnerabilities = %d, want 0", len(doc.Versions[1].Vulnerabilities))
	}
	if doc.Versions[1].Dependencies == nil || doc.Versions[1].Vulnerabilities == nil {
		t.Error("empty version slices must be non-nil")
	}
}

func TestResolver_Metrics(t *testing.T) {
	collector := metrics.NewInMemoryCollector()
	fake := &fakeQuerier{
		versions: map[string][]string{"app": {"1.0"}},
		deps: map[string][]depEntry{
			"app:1.0": {{uri: "http://example.org/sw/libb", version: "1.0"}},
		},
	}

	r := NewResolver(fake, nil, WithCollector(collector))
	if _, err := r.Resolve(context.Background(), "app"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := collector.GetCounter(metrics.ResolutionsTotal.Name, "status", "ok"); got != 1 {
		t.Errorf("resolutions ok = %v, want 1", got)
	}
	if got := collector.GetCounter(metrics.ResolvedNodesTotal.Name); got != 1 {
		t.Errorf("resolved nodes = %v, want 1", got)
	}
	if obs := collector.GetHistogram(metrics.ResolutionDuration.Name); len(obs) != 1 {
		t.Errorf("duration observations = %d, want 1", len(obs))
	}
}

func TestResolver_CustomTool(t *testing.T) {
	fake := &fakeQuerier{versions: map[string][]string{}}
	r := NewResolver(fake, &Config{ToolName: "acme-sbom", ToolVersion: "2.3.4"})

	doc, err := r.Resolve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if doc.Tool.Name != "acme-sbom" || doc.Tool.Version != "2.3.4" {
		t.Errorf("Tool = %+v", doc.Tool)
	}
}

func TestLastSegment(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://example.org/cwe/CWE-22", "CWE-22"},
		{"http://example.org/sw/zlib", "zlib"},
		{"no-slashes", "no-slashes"},
		{"trailing/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := lastSegment(tt.uri); got != tt.want {
			t.Errorf("lastSegment(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
