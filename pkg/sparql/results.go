package sparql

import (
	"encoding/json"

	"github.com/securechain/sbomgen/pkg/errors"
)

// Term is a single RDF term bound to a variable in one solution row.
type Term struct {
	Type     string `json:"type"` // "uri", "literal" or "bnode"
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Binding maps variable names to the terms bound in one solution row.
// A variable an OPTIONAL clause left unmatched is absent from the map,
// which is distinct from a variable bound to an empty literal.
type Binding map[string]Term

// Has reports whether the variable is bound in this row.
func (b Binding) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Value returns the bound value for the variable, or "" when unbound.
func (b Binding) Value(name string) string {
	return b[name].Value
}

// Lookup returns the bound value and whether the variable was bound.
func (b Binding) Lookup(name string) (string, bool) {
	term, ok := b[name]
	return term.Value, ok
}

// ResultSet holds the parsed result of one query.
type ResultSet struct {
	// Vars is the SELECT projection in endpoint order.
	Vars []string

	// Bindings holds one entry per solution row. Empty for queries
	// that matched nothing.
	Bindings []Binding

	// Boolean is set for ASK responses and nil otherwise.
	Boolean *bool
}

// Len returns the number of solution rows.
func (r *ResultSet) Len() int {
	return len(r.Bindings)
}

// IsEmpty reports whether the result carries no rows.
func (r *ResultSet) IsEmpty() bool {
	return len(r.Bindings) == 0
}

// Values collects the bound values of one variable across all rows,
// skipping rows where it is unbound.
func (r *ResultSet) Values(name string) []string {
	values := make([]string, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		if v, ok := b.Lookup(name); ok {
			values = append(values, v)
		}
	}
	return values
}

// ParseResults decodes an application/sparql-results+json body.
// A body that does not decode is treated as an endpoint failure: the
// endpoint answered 200 with something other than a results document.
func ParseResults(data []byte) (*ResultSet, error) {
	var doc resultsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.E(errors.KindEndpoint, "sparql.ParseResults", "malformed results document", err)
	}

	rs := &ResultSet{
		Vars:    doc.Head.Vars,
		Boolean: doc.Boolean,
	}
	if doc.Results != nil {
		rs.Bindings = make([]Binding, 0, len(doc.Results.Bindings))
		for _, row := range doc.Results.Bindings {
			rs.Bindings = append(rs.Bindings, Binding(row))
		}
	}
	return rs, nil
}

// =============================================================================
// SPARQL 1.1 Query Results JSON Format (wire structs)
// =============================================================================

type resultsDocument struct {
	Head    resultsHead     `json:"head"`
	Results *resultsSection `json:"results"`
	Boolean *bool           `json:"boolean"`
}

type resultsHead struct {
	Vars []string `json:"vars"`
}

type resultsSection struct {
	Bindings []map[string]Term `json:"bindings"`
}
