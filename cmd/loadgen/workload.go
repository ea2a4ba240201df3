package main

import (
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
)

// target is one distinct layer request in the pool.
type target struct {
	Dataset string
	Year    string
	// Res is -1 for raw points.
	Res int
}

func (t target) String() string {
	if t.Res < 0 {
		return fmt.Sprintf("%s/%s/points", t.Dataset, t.Year)
	}
	return fmt.Sprintf("%s/%s/h3r%d", t.Dataset, t.Year, t.Res)
}

// URL builds the geojson request for t against the API base URL.
func (t target) URL(base *url.URL) string {
	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/datasets/" + url.PathEscape(t.Dataset) + "/geojson"
	q := url.Values{}
	q.Set("year", t.Year)
	if t.Res >= 0 {
		q.Set("bin", "h3")
		q.Set("res", strconv.Itoa(t.Res))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// makeTargets crosses datasets, years and resolutions (plus raw points) and
// shuffles the result with r, so which requests the Zipf head picks as hot
// differs per seed.
func makeTargets(datasets, years []string, resolutions []int, r *rand.Rand) []target {
	out := make([]target, 0, len(datasets)*len(years)*(len(resolutions)+1))
	for _, d := range datasets {
		for _, y := range years {
			out = append(out, target{Dataset: d, Year: y, Res: -1})
			for _, res := range resolutions {
				out = append(out, target{Dataset: d, Year: y, Res: res})
			}
		}
	}
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseResolutions(s string) ([]int, error) {
	var out []int
	for _, p := range splitList(s) {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 15 {
			return nil, fmt.Errorf("invalid H3 resolution %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
