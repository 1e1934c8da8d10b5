// Package spatialref resolves spatial references advertised by feature
// services and shares the resolved values process-wide.
package spatialref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SpatialReference is a resolved coordinate reference system.
type SpatialReference struct {
	// WKID is the well-known identifier, 0 when only a definition is known.
	WKID int `json:"wkid,omitempty"`

	// WKT is the raw definition text, if the service supplied one.
	WKT string `json:"wkt,omitempty"`

	// Name is the CRS name (e.g. "WGS 84").
	Name string `json:"name,omitempty"`

	// Geographic is true for angular (lon/lat) systems.
	Geographic bool `json:"geographic"`
}

// String returns "EPSG:<wkid>" or the CRS name.
func (s *SpatialReference) String() string {
	if s.WKID != 0 {
		return "EPSG:" + strconv.Itoa(s.WKID)
	}
	return s.Name
}

// Aliases of vendor codes to their EPSG equivalents.
var aliases = map[int]int{
	102100: 3857,
	102113: 3785,
	900913: 3857,
	104199: 4326,
}

type known struct {
	name       string
	geographic bool
}

var wellKnown = map[int]known{
	4326:  {"WGS 84", true},
	4269:  {"NAD83", true},
	4267:  {"NAD27", true},
	4258:  {"ETRS89", true},
	4283:  {"GDA94", true},
	7844:  {"GDA2020", true},
	3857:  {"WGS 84 / Pseudo-Mercator", false},
	3785:  {"Popular Visualisation CRS / Mercator", false},
	2193:  {"NZGD2000 / New Zealand Transverse Mercator 2000", false},
	27700: {"OSGB 1936 / British National Grid", false},
	25832: {"ETRS89 / UTM zone 32N", false},
	25833: {"ETRS89 / UTM zone 33N", false},
	32632: {"WGS 84 / UTM zone 32N", false},
	32633: {"WGS 84 / UTM zone 33N", false},
}

// ResolveWKID resolves a well-known code. Vendor aliases are mapped to their
// EPSG codes; unknown but plausible codes resolve to a nameless reference.
func ResolveWKID(wkid int) (*SpatialReference, error) {
	if wkid <= 0 {
		return nil, fmt.Errorf("invalid wkid %d", wkid)
	}
	if canonical, ok := aliases[wkid]; ok {
		wkid = canonical
	}
	sr := &SpatialReference{WKID: wkid}
	if k, ok := wellKnown[wkid]; ok {
		sr.Name = k.name
		sr.Geographic = k.geographic
	} else {
		// EPSG geographic 2D systems live in 4000-4999
		sr.Geographic = wkid >= 4000 && wkid < 5000
	}
	return sr, nil
}

var (
	wktHead      = regexp.MustCompile(`^\s*([A-Z_]+)\s*\[\s*"([^"]*)"`)
	wktAuthority = regexp.MustCompile(`AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]\s*\]\s*$`)
)

// ResolveWKT resolves a raw definition. The outermost authority code, if
// present, becomes the WKID.
func ResolveWKT(wkt string) (*SpatialReference, error) {
	m := wktHead.FindStringSubmatch(wkt)
	if m == nil {
		return nil, fmt.Errorf("unrecognised spatial reference definition")
	}

	sr := &SpatialReference{WKT: wkt, Name: m[2]}
	switch strings.ToUpper(m[1]) {
	case "GEOGCS", "GEOGCRS", "GEODCRS":
		sr.Geographic = true
	case "PROJCS", "PROJCRS":
		sr.Geographic = false
	default:
		return nil, fmt.Errorf("unsupported spatial reference kind %q", m[1])
	}

	if a := wktAuthority.FindStringSubmatch(strings.TrimSpace(wkt)); a != nil {
		if code, err := strconv.Atoi(a[1]); err == nil {
			sr.WKID = code
		}
	}
	return sr, nil
}
