package parser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kilonova-lab/specconv/internal/models"
)

// filenameRegex is the structured filename grammar. Token positions are fixed:
//
//	0 run label, 1 topology, 2-4 free, 5 wind, 6 free,
//	7 md, 8 vd, 9 mw, 10 vw (two-character prefix + number), then any suffix.
var filenameRegex = regexp.MustCompile(
	`^[^_]*_(?P<topology>[^_]*)_[^_]*_[^_]*_[^_]*_(?P<wind>[^_]*)_[^_]*` +
		`_[^_]{2}(?P<md>[^_]*)_[^_]{2}(?P<vd>[^_]*)_[^_]{2}(?P<mw>[^_]*)_[^_]{2}(?P<vw>[^_]*)(?:_.*)?$`)

const (
	topologyPointToken = "TP"
	windTwoToken       = "wind2"
)

// ParseFilename derives topology, wind multiplicity and the four ejecta
// parameters from the final path segment of path.
func ParseFilename(path string) (models.Metadata, error) {
	name := filepath.Base(path)
	stem := trimExtension(name)

	match := filenameRegex.FindStringSubmatch(stem)
	if match == nil {
		return models.Metadata{}, &MetadataError{
			Name:   name,
			Reason: "expected at least 11 underscore-delimited tokens",
		}
	}
	groups := make(map[string]string, 6)
	for i, group := range filenameRegex.SubexpNames() {
		if group != "" {
			groups[group] = match[i]
		}
	}

	meta := models.Metadata{
		Topology: models.TopologyPlane,
		Wind:     models.WindOne,
	}
	if groups["topology"] == topologyPointToken {
		meta.Topology = models.TopologyPoint
	}
	if groups["wind"] == windTwoToken {
		meta.Wind = models.WindTwo
	}

	fields := []struct {
		name string
		dst  *float64
	}{
		{"md", &meta.MassDynamical},
		{"vd", &meta.VelocityDynamical},
		{"mw", &meta.MassWind},
		{"vw", &meta.VelocityWind},
	}
	for _, f := range fields {
		raw := groups[f.name]
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Metadata{}, &MetadataError{
				Name:   name,
				Field:  f.name,
				Reason: "non-numeric value " + strconv.Quote(raw),
				Err:    err,
			}
		}
		*f.dst = v
	}
	return meta, nil
}

// trimExtension removes a trailing ".ext" unless it reads as the fractional
// or exponent part of the last numeric token ("vw0.050", "vw1.5e-3").
func trimExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return name
	}
	if _, err := strconv.ParseFloat("0"+ext, 64); err == nil {
		return name
	}
	return strings.TrimSuffix(name, ext)
}
