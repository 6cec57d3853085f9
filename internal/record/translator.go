// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
)

// Translator maps a Record to a row of its target schema.
type Translator interface {
	Translate(r Record) (schema.Row, error)
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(r Record) (schema.Row, error)

// Translate calls f(r).
func (f TranslatorFunc) Translate(r Record) (schema.Row, error) {
	return f(r)
}

// FieldTranslator fills each schema column from a declared source path.
// Columns without a mapping read the source field of the same name; absent
// fields become NULL. Geometry columns may instead be composed from a
// longitude/latitude pair.
type FieldTranslator struct {
	schema *schema.Schema
	paths  []string
	points map[int][2]string
}

// NewFieldTranslator builds a translator for s. fields maps column name to
// source path. A geometry column mapped to "point(lonPath,latPath)" is built
// as a GeoJSON Point from two numeric fields.
func NewFieldTranslator(s *schema.Schema, fields map[string]string) (*FieldTranslator, error) {
	t := &FieldTranslator{
		schema: s,
		paths:  make([]string, s.Len()),
		points: make(map[int][2]string),
	}
	for name := range fields {
		if _, ok := s.Index(name); !ok {
			return nil, fmt.Errorf("field mapping references unknown column %q", name)
		}
	}
	for i, col := range s.Columns() {
		path := col.Name
		for name, p := range fields {
			if strings.EqualFold(name, col.Name) {
				path = p
				break
			}
		}
		if lon, lat, ok := parsePointSpec(path); ok {
			if col.Type != schema.Geometry {
				return nil, fmt.Errorf("column %q: point() mapping requires a geometry column", col.Name)
			}
			t.points[i] = [2]string{lon, lat}
		}
		t.paths[i] = path
	}
	return t, nil
}

func parsePointSpec(path string) (lon, lat string, ok bool) {
	inner, found := strings.CutPrefix(path, "point(")
	if !found || !strings.HasSuffix(inner, ")") {
		return "", "", false
	}
	lon, lat, found = strings.Cut(strings.TrimSuffix(inner, ")"), ",")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(lon), strings.TrimSpace(lat), true
}

// Translate implements Translator. Values are copied as found; type checking
// happens when the engine normalizes the row against the schema.
func (t *FieldTranslator) Translate(r Record) (schema.Row, error) {
	row := make(schema.Row, len(t.paths))
	for i, path := range t.paths {
		if pt, ok := t.points[i]; ok {
			geom, err := pointGeometry(r, pt[0], pt[1])
			if err != nil {
				return nil, err
			}
			row[i] = geom
			continue
		}
		if v, ok := r.Get(path); ok {
			if ts, isTime := v.(time.Time); isTime {
				v = ts.UTC()
			}
			row[i] = v
		}
	}
	return row, nil
}

func pointGeometry(r Record, lonPath, latPath string) (map[string]any, error) {
	lon, err := r.Float(lonPath)
	if err != nil {
		return nil, err
	}
	lat, err := r.Float(latPath)
	if err != nil {
		return nil, err
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("point (%v, %v) outside WGS84 bounds", lon, lat)
	}
	return map[string]any{
		"type":        "Point",
		"coordinates": []float64{lon, lat},
	}, nil
}
