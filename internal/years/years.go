// Package years buckets records and features by calendar year.
package years

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/opendata-map/internal/geojson"
	"github.com/mohammed-shakir/opendata-map/internal/schema"
)

// All selects every record regardless of timestamp.
const All = "all"

var ErrInvalidYear = errors.New("invalid year")

// ParseYear normalises a user-supplied filter. Empty means All.
func ParseYear(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, All) {
		return All, nil
	}
	if len(s) != 4 || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidYear, s)
	}
	return s, nil
}

// Years returns the distinct UTC years of field, newest first. Records
// without a timestamp contribute nothing.
func Years(records []schema.Record, field string) []string {
	seen := map[int]struct{}{}
	for _, r := range records {
		if t, ok := r.Time(field); ok {
			seen[t.UTC().Year()] = struct{}{}
		}
	}
	return sorted(seen)
}

// FeatureYears is Years over the created_date property.
func FeatureYears(fc geojson.FeatureCollection) []string {
	seen := map[int]struct{}{}
	for _, f := range fc.Features {
		if y, ok := featureYear(f); ok {
			seen[y] = struct{}{}
		}
	}
	return sorted(seen)
}

func sorted(seen map[int]struct{}) []string {
	ys := make([]int, 0, len(seen))
	for y := range seen {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))
	out := make([]string, len(ys))
	for i, y := range ys {
		out[i] = strconv.Itoa(y)
	}
	return out
}

// Filter keeps records whose field falls in year. All keeps everything;
// otherwise records without a timestamp are excluded.
func Filter(records []schema.Record, field, year string) []schema.Record {
	if year == All {
		return records
	}
	out := make([]schema.Record, 0, len(records))
	for _, r := range records {
		if t, ok := r.Time(field); ok && strconv.Itoa(t.UTC().Year()) == year {
			out = append(out, r)
		}
	}
	return out
}

// FilterFeatures applies the Filter rule to the created_date property, so
// filtering before or after the transform keeps the same features.
func FilterFeatures(fc geojson.FeatureCollection, year string) geojson.FeatureCollection {
	if year == All {
		return fc
	}
	out := make([]geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if y, ok := featureYear(f); ok && strconv.Itoa(y) == year {
			out = append(out, f)
		}
	}
	return geojson.NewFeatureCollection(out)
}

func featureYear(f geojson.Feature) (int, bool) {
	s, ok := f.Properties[geojson.PropCreatedDate].(string)
	if !ok {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, false
	}
	return t.UTC().Year(), true
}
