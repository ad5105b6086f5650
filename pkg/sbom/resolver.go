// Package sbom resolves a component's dependency and vulnerability
// graph from the knowledge graph into an SBOM document model.
//
// Resolution is a synchronous depth-first walk through a Querier. The
// walk is bounded by a maximum depth, and cycles are cut by a set of
// the (name, version) keys on the current traversal path only; the
// same component may legitimately appear again under a sibling branch.
package sbom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/securechain/sbomgen/pkg/audit"
	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/logging"
	"github.com/securechain/sbomgen/pkg/metrics"
	"github.com/securechain/sbomgen/pkg/sparql"
)

// Config holds resolver configuration.
type Config struct {
	// MaxDepth bounds the dependency recursion. Depth counts from 0
	// at a root version; a branch deeper than MaxDepth resolves to an
	// empty dependency list.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// ToolName and ToolVersion are stamped into generated documents.
	ToolName    string `yaml:"tool_name" json:"tool_name"`
	ToolVersion string `yaml:"tool_version" json:"tool_version"`
}

// DefaultConfig returns default resolver config.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:    10,
		ToolName:    "Secure-Chain SBOM Generator",
		ToolVersion: "1.0.0",
	}
}

// Resolver walks the dependency and vulnerability relations of a
// component and assembles the document model.
//
// A Resolver is safe for concurrent use: every Resolve call owns its
// traversal state, and the Querier is the only shared collaborator.
type Resolver struct {
	querier   sparql.Querier
	maxDepth  int
	tool      Tool
	logger    logging.Logger
	collector metrics.Collector
	auditLog  *audit.Logger
}

// Option is a function that configures the resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector(m metrics.Collector) Option {
	return func(r *Resolver) {
		if m != nil {
			r.collector = m
		}
	}
}

// WithAuditLog attaches an audit logger for resolution events.
func WithAuditLog(a *audit.Logger) Option {
	return func(r *Resolver) {
		r.auditLog = a
	}
}

// NewResolver creates a resolver backed by querier, filling unset
// config values with defaults.
func NewResolver(querier sparql.Querier, cfg *Config, opts ...Option) *Resolver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultConfig().MaxDepth
	}
	toolName := cfg.ToolName
	if toolName == "" {
		toolName = DefaultConfig().ToolName
	}
	toolVersion := cfg.ToolVersion
	if toolVersion == "" {
		toolVersion = DefaultConfig().ToolVersion
	}

	r := &Resolver{
		querier:   querier,
		maxDepth:  maxDepth,
		tool:      Tool{Name: toolName, Version: toolVersion},
		logger:    logging.Default(),
		collector: metrics.GetDefaultCollector(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the SBOM document for the named component.
//
// The name must satisfy the same allow-list as query parameters; the
// check runs before any query executes. Any query failure aborts the
// whole resolution; there is no partial document. Zero discovered
// versions is a valid outcome.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Document, error) {
	const op = "sbom.Resolve"

	if err := sparql.ValidateParam("software_name", name); err != nil {
		return nil, errors.E(errors.KindInvalidInput, op,
			fmt.Sprintf("invalid software name %q", name), err)
	}

	start := time.Now()
	if r.auditLog != nil {
		r.auditLog.ResolveStarted(name)
	}

	timer := metrics.NewTimer(r.collector, metrics.ResolutionDuration.Name)
	doc, err := r.resolve(ctx, name)
	timer.ObserveDuration()

	if err != nil {
		r.collector.CounterInc(metrics.ResolutionsTotal.Name, "status", "error")
		if r.auditLog != nil {
			r.auditLog.ResolveFailed(name, err)
		}
		return nil, err
	}

	r.collector.CounterInc(metrics.ResolutionsTotal.Name, "status", "ok")
	if r.auditLog != nil {
		r.auditLog.ResolveCompleted(name, len(doc.Versions), time.Since(start))
	}
	return doc, nil
}

func (r *Resolver) resolve(ctx context.Context, name string) (*Document, error) {
	r.logger.Info("resolving SBOM for %s", name)

	versions, err := r.resolveVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Name:        name,
		Versions:    versions,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Tool:        r.tool,
	}

	for i := range doc.Versions {
		version := &doc.Versions[i]

		// Each version gets its own traversal path.
		path := make(map[string]struct{})
		deps, err := r.resolveDependencies(ctx, name, version.VersionID, 0, path)
		if err != nil {
			return nil, err
		}
		version.Dependencies = deps

		vulns, err := r.resolveVulnerabilities(ctx, name, version.VersionID)
		if err != nil {
			return nil, err
		}
		version.Vulnerabilities = vulns
	}

	return doc, nil
}

// resolveVersions discovers every version of the component.
func (r *Resolver) resolveVersions(ctx context.Context, name string) ([]VersionRecord, error) {
	rs, err := r.querier.Query(ctx, versionQuery, map[string]string{
		"software_name": name,
	})
	if err != nil {
		return nil, err
	}

	versions := make([]VersionRecord, 0, rs.Len())
	for _, b := range rs.Bindings {
		id, ok := b.Lookup("version_id")
		if !ok {
			continue
		}
		versions = append(versions, VersionRecord{
			VersionID:       id,
			Dependencies:    []DependencyEdge{},
			Vulnerabilities: []VulnerabilityRecord{},
		})
	}

	r.logger.Debug("found %d versions for %s", len(versions), name)
	return versions, nil
}

// resolveDependencies walks the dependency relation below one version.
//
// path holds the name:version keys of the ancestors on the current
// traversal path. A key already present marks a cycle and truncates
// the branch to an empty list. The key is removed again on return so
// sibling branches traverse with a clean path; dropping that removal
// would silently lose diamond dependencies.
func (r *Resolver) resolveDependencies(ctx context.Context, name, versionID string, depth int, path map[string]struct{}) ([]DependencyEdge, error) {
	if depth > r.maxDepth {
		r.logger.Warn("maximum dependency depth reached for %s %s", name, versionID)
		return []DependencyEdge{}, nil
	}

	key := name + ":" + versionID
	if _, onPath := path[key]; onPath {
		r.logger.Debug("circular dependency detected: %s", key)
		return []DependencyEdge{}, nil
	}
	path[key] = struct{}{}
	defer delete(path, key)

	r.logger.Debug("resolving dependencies for %s %s (depth %d)", name, versionID, depth)

	rs, err := r.querier.Query(ctx, dependencyQuery, map[string]string{
		"software_name": name,
		"version_id":    versionID,
	})
	if err != nil {
		return nil, err
	}

	deps := make([]DependencyEdge, 0, rs.Len())
	for _, b := range rs.Bindings {
		depURI, ok := b.Lookup("dependency")
		if !ok {
			continue
		}
		depVersion, ok := b.Lookup("depVersionName")
		if !ok {
			continue
		}
		depName := lastSegment(depURI)

		// A child already on the path closes a cycle: skip the edge
		// entirely rather than emitting a childless duplicate.
		if _, onPath := path[depName+":"+depVersion]; onPath {
			continue
		}

		subDeps, err := r.resolveDependencies(ctx, depName, depVersion, depth+1, path)
		if err != nil {
			return nil, err
		}

		vulns, err := r.resolveVulnerabilities(ctx, depName, depVersion)
		if err != nil {
			return nil, err
		}

		r.collector.CounterInc(metrics.ResolvedNodesTotal.Name)
		deps = append(deps, DependencyEdge{
			Name:            depName,
			VersionID:       depVersion,
			Dependencies:    subDeps,
			Vulnerabilities: vulns,
		})
	}

	return deps, nil
}

// resolveVulnerabilities fetches the known vulnerabilities of one
// component version.
func (r *Resolver) resolveVulnerabilities(ctx context.Context, name, versionID string) ([]VulnerabilityRecord, error) {
	rs, err := r.querier.Query(ctx, vulnerabilityQuery, map[string]string{
		"software_name": name,
		"version_id":    versionID,
	})
	if err != nil {
		return nil, err
	}

	vulns := make([]VulnerabilityRecord, 0, rs.Len())
	for _, b := range rs.Bindings {
		uri, ok := b.Lookup("vulnerability")
		if !ok {
			continue
		}
		id, ok := b.Lookup("vulnId")
		if !ok {
			continue
		}

		record := VulnerabilityRecord{ID: id, URI: uri}
		// The classification is optional: unbound means no type at
		// all, not an empty one.
		if typeURI, ok := b.Lookup("vulnType"); ok {
			vulnType := lastSegment(typeURI)
			record.Type = &vulnType
		}
		vulns = append(vulns, record)
	}

	return vulns, nil
}

// lastSegment returns the trailing path segment of a graph URI.
func lastSegment(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
