// Package service probes feature-service layers once at harvest startup and
// describes them: kind, identifier field, geometry type, spatial reference
// and (when the server can answer) total record count.
package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/feature-harvester/pkg/query"
	"github.com/Sternrassler/feature-harvester/pkg/spatialref"
)

// Kind is the declared layer type.
type Kind string

const (
	// KindFeatureLayer is a layer with geometry.
	KindFeatureLayer Kind = "feature-layer"

	// KindTable is a layer without geometry.
	KindTable Kind = "table"
)

// OIDFieldType is the field type that marks the object identifier.
const OIDFieldType = "esriFieldTypeOID"

// Query names the layer and filter of one logical harvest.
type Query struct {
	// LayerURL is the layer endpoint, e.g. .../FeatureServer/0. It may carry
	// extra query parameters (e.g. a token) that are kept on every request.
	LayerURL string

	// Where is the caller's filter; empty means every record.
	Where string
}

// Validate checks that LayerURL is an absolute http(s) URL.
func (q Query) Validate() error {
	u, err := url.Parse(q.LayerURL)
	if err != nil {
		return fmt.Errorf("parse layer url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("layer url must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("layer url has no host")
	}
	return nil
}

// MetadataURL returns the layer description URL (…/layer?f=json).
func (q Query) MetadataURL() string {
	return query.Set(q.LayerURL, "f", "json")
}

// QueryURL returns the layer's query endpoint carrying the caller's where
// clause (normalised to a tautology when empty) and any parameters already
// present on LayerURL.
func (q Query) QueryURL() string {
	base, rest := q.LayerURL, ""
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base, rest = base[:i], base[i:]
	}
	u := strings.TrimSuffix(base, "/") + "/query" + rest
	return query.Set(u, "where", query.NormalizeWhere(q.Where))
}

// Descriptor describes a probed layer. It is created once and never mutated.
type Descriptor struct {
	Kind             Kind                         `json:"kind"`
	Type             string                       `json:"type"`
	IdentifierField  string                       `json:"identifier_field,omitempty"`
	OIDCandidates    []string                     `json:"oid_candidates,omitempty"`
	GeometryType     string                       `json:"geometry_type,omitempty"`
	SpatialReference *spatialref.SpatialReference `json:"spatial_reference,omitempty"`
	TotalCount       *int64                       `json:"total_count,omitempty"`
}

// HasIdentifier reports whether windowed queries are possible.
func (d *Descriptor) HasIdentifier() bool {
	return d.IdentifierField != ""
}

// RequireIdentifier returns the identifier field or *MissingIdentifierFieldError.
func (d *Descriptor) RequireIdentifier() (string, error) {
	if d.IdentifierField == "" {
		return "", &MissingIdentifierFieldError{Candidates: d.OIDCandidates}
	}
	return d.IdentifierField, nil
}

// Count returns the known total count.
func (d *Descriptor) Count() (int64, bool) {
	if d.TotalCount == nil {
		return 0, false
	}
	return *d.TotalCount, true
}
