// Package testutil provides a synthetic feature service for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// RequestKind classifies requests received by the FeatureService.
type RequestKind string

const (
	KindMetadata  RequestKind = "metadata"
	KindCount     RequestKind = "count"
	KindFull      RequestKind = "full"      // window with attributes
	KindProbe     RequestKind = "probe"     // bounded existence probe
	KindOpenProbe RequestKind = "openprobe" // unbounded existence probe
	KindFailed    RequestKind = "failed"    // injected failure
)

// FeatureServiceConfig describes the simulated layer.
type FeatureServiceConfig struct {
	// IDs are the live object identifiers (any order, duplicates ignored)
	IDs []int64

	// LayerType is the declared type (default "Feature Layer")
	LayerType string

	// OIDFields are the fields flagged esriFieldTypeOID (default ["OBJECTID"])
	OIDFields []string

	// WKID advertised in extent.spatialReference (default 4326, 0 omits it)
	WKID int

	// WKT advertised instead of a WKID when non-empty
	WKT string

	// MaxRecordCount caps rows per query response (default 1000)
	MaxRecordCount int

	// FailFirst makes the first N requests answer 500
	FailFirst int

	// MetadataError makes the metadata call return an error envelope
	MetadataError bool

	// RejectCount makes count-only queries return an error envelope
	RejectCount bool

	// CountOverride, when non-nil, is returned by count-only queries
	CountOverride *int

	// PhantomRows appends this many rows with identifiers outside the
	// window to every full query response
	PhantomRows int

	// Gzip compresses responses when the client accepts gzip
	Gzip bool
}

// FeatureService is an httptest server that answers layer metadata,
// count-only and identifier-window queries over a fixed identifier set.
type FeatureService struct {
	server *httptest.Server
	cfg    FeatureServiceConfig
	ids    []int64
	oid    string

	mu       sync.Mutex
	requests int
	counts   map[RequestKind]int
	wheres   []string
	phantom  int64
}

var (
	rangeLow  = regexp.MustCompile(`(\w+)\s*>=\s*(-?\d+)`)
	rangeHigh = regexp.MustCompile(`(\w+)\s*<\s*(-?\d+)`)
)

// NewFeatureService starts a FeatureService. Close it when done.
func NewFeatureService(cfg FeatureServiceConfig) *FeatureService {
	if cfg.LayerType == "" {
		cfg.LayerType = "Feature Layer"
	}
	if cfg.OIDFields == nil {
		cfg.OIDFields = []string{"OBJECTID"}
	}
	if cfg.MaxRecordCount <= 0 {
		cfg.MaxRecordCount = 1000
	}

	seen := make(map[int64]bool, len(cfg.IDs))
	ids := make([]int64, 0, len(cfg.IDs))
	for _, id := range cfg.IDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fs := &FeatureService{
		cfg:     cfg,
		ids:     ids,
		counts:  make(map[RequestKind]int),
		phantom: 1 << 40,
	}
	if len(cfg.OIDFields) > 0 {
		fs.oid = cfg.OIDFields[0]
	} else {
		fs.oid = "OBJECTID"
	}
	fs.server = httptest.NewServer(http.HandlerFunc(fs.handle))
	return fs
}

// Range returns identifiers lo..hi-1.
func Range(lo, hi int64) []int64 {
	out := make([]int64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

// Concat joins identifier slices.
func Concat(parts ...[]int64) []int64 {
	var out []int64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// URL returns the server root.
func (fs *FeatureService) URL() string {
	return fs.server.URL
}

// LayerURL returns the URL of the simulated layer.
func (fs *FeatureService) LayerURL() string {
	return fs.server.URL + "/arcgis/rest/services/Test/FeatureServer/0"
}

// Close shuts down the server.
func (fs *FeatureService) Close() {
	fs.server.Close()
}

// IDs returns the sorted live identifiers.
func (fs *FeatureService) IDs() []int64 {
	return append([]int64(nil), fs.ids...)
}

// RequestCount returns the total number of requests received.
func (fs *FeatureService) RequestCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests
}

// Count returns the number of requests of a kind.
func (fs *FeatureService) Count(kind RequestKind) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.counts[kind]
}

// Wheres returns every where clause received by query requests.
func (fs *FeatureService) Wheres() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.wheres...)
}

func (fs *FeatureService) record(kind RequestKind, where string) (fail bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.requests++
	if fs.requests <= fs.cfg.FailFirst {
		fs.counts[KindFailed]++
		return true
	}
	fs.counts[kind]++
	if where != "" {
		fs.wheres = append(fs.wheres, where)
	}
	return false
}

func (fs *FeatureService) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !strings.HasSuffix(r.URL.Path, "/query") {
		if fs.record(KindMetadata, "") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fs.metadata(w, r)
		return
	}

	where := q.Get("where")
	if strings.EqualFold(q.Get("returnCountOnly"), "true") {
		if fs.record(KindCount, where) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fs.count(w, r)
		return
	}

	lo, hi, bounded := fs.parseWindow(where)
	full := q.Get("outFields") != ""
	kind := KindFull
	switch {
	case !full && bounded:
		kind = KindProbe
	case !full:
		kind = KindOpenProbe
	}
	if fs.record(kind, where) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	withGeometry := strings.EqualFold(q.Get("returnGeometry"), "true")
	features := make([]map[string]any, 0)
	for _, id := range fs.ids {
		if id < lo || (bounded && id >= hi) {
			continue
		}
		if len(features) >= fs.cfg.MaxRecordCount {
			break
		}
		features = append(features, fs.feature(id, full, withGeometry))
	}
	if full {
		fs.mu.Lock()
		for i := 0; i < fs.cfg.PhantomRows; i++ {
			fs.phantom++
			features = append(features, fs.feature(fs.phantom, true, withGeometry))
		}
		fs.mu.Unlock()
	}

	fs.write(w, r, map[string]any{
		"objectIdFieldName": fs.oid,
		"features":          features,
	})
}

func (fs *FeatureService) feature(id int64, full, withGeometry bool) map[string]any {
	attrs := map[string]any{}
	if full {
		attrs[fs.oid] = id
		attrs["NAME"] = "feature-" + strconv.FormatInt(id, 10)
	}
	f := map[string]any{"attributes": attrs}
	if withGeometry && fs.cfg.LayerType != "Table" {
		f["geometry"] = map[string]any{"x": float64(id) / 10, "y": float64(id) / 20}
	}
	return f
}

// parseWindow extracts the identifier bounds from a where clause.
func (fs *FeatureService) parseWindow(where string) (lo, hi int64, bounded bool) {
	lo = -1 << 62
	for _, m := range rangeLow.FindAllStringSubmatch(where, -1) {
		if m[1] == fs.oid {
			lo, _ = strconv.ParseInt(m[2], 10, 64)
		}
	}
	for _, m := range rangeHigh.FindAllStringSubmatch(where, -1) {
		if m[1] == fs.oid {
			hi, _ = strconv.ParseInt(m[2], 10, 64)
			bounded = true
		}
	}
	return lo, hi, bounded
}

func (fs *FeatureService) metadata(w http.ResponseWriter, r *http.Request) {
	if fs.cfg.MetadataError {
		fs.write(w, r, map[string]any{
			"error": map[string]any{
				"code":    500,
				"message": "Service Test/FeatureServer not started",
				"details": []string{},
			},
		})
		return
	}

	fields := []map[string]any{}
	for _, name := range fs.cfg.OIDFields {
		fields = append(fields, map[string]any{"name": name, "type": "esriFieldTypeOID"})
	}
	fields = append(fields, map[string]any{"name": "NAME", "type": "esriFieldTypeString"})

	meta := map[string]any{
		"type":   fs.cfg.LayerType,
		"fields": fields,
	}
	if fs.cfg.LayerType != "Table" {
		meta["geometryType"] = "esriGeometryPoint"
	}
	sr := map[string]any{}
	switch {
	case fs.cfg.WKT != "":
		sr["wkt"] = fs.cfg.WKT
	case fs.cfg.WKID != 0:
		sr["wkid"] = fs.cfg.WKID
	}
	if len(sr) > 0 {
		meta["extent"] = map[string]any{"xmin": 0, "ymin": 0, "xmax": 1, "ymax": 1, "spatialReference": sr}
	}
	fs.write(w, r, meta)
}

func (fs *FeatureService) count(w http.ResponseWriter, r *http.Request) {
	if fs.cfg.RejectCount {
		fs.write(w, r, map[string]any{
			"error": map[string]any{
				"code":    400,
				"message": "Unable to complete operation.",
				"details": []string{"'returnCountOnly' parameter is invalid"},
			},
		})
		return
	}
	n := len(fs.ids)
	if fs.cfg.CountOverride != nil {
		n = *fs.cfg.CountOverride
	}
	fs.write(w, r, map[string]any{"count": n})
}

func (fs *FeatureService) write(w http.ResponseWriter, r *http.Request, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("marshal: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if fs.cfg.Gzip && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write(data)
		_ = zw.Close()
		return
	}
	_, _ = w.Write(data)
}
