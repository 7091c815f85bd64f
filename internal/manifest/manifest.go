// Package manifest decodes the list of script fingerprints a browser reports
// on AJAX requests, so scripts it already holds are not sent again.
package manifest

import (
	"encoding/json"
	"net/http"

	"github.com/assetpack/assetpack/internal/naming"
)

// Param is the request parameter carrying the manifest.
const Param = "nlsc_map"

// Manifest is the set of fingerprints the client has already loaded.
type Manifest map[uint32]struct{}

// Parse decodes a JSON array of integers. Absent or malformed input yields an
// empty manifest; a bad manifest must never fail the render.
func Parse(s string) Manifest {
	m := Manifest{}
	if s == "" {
		return m
	}

	var raw []json.Number
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return m
	}

	for _, n := range raw {
		v, err := n.Int64()
		if err != nil || v < 0 || v > 0xFFFFFFFF {
			continue
		}
		m[uint32(v)] = struct{}{}
	}
	return m
}

// FromRequest reads the manifest from the query string or form body.
func FromRequest(r *http.Request) Manifest {
	return Parse(r.FormValue(Param))
}

// Holds reports whether the client already loaded absURL.
func (m Manifest) Holds(absURL string) bool {
	_, ok := m[naming.Fingerprint(absURL)]
	return ok
}
