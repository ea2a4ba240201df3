package router

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/layers"
	"github.com/mohammed-shakir/opendata-map/internal/schema"
	"github.com/mohammed-shakir/opendata-map/internal/years"
)

type datasetSummary struct {
	Name      string            `json:"name"`
	Title     string            `json:"title"`
	Layer     dataset.LayerKind `json:"layer"`
	Timestamp string            `json:"timestamp,omitempty"`
	Strict    bool              `json:"strict"`
	Status    layers.Status     `json:"status"`
}

func (a *api) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	st := a.deps.Layers.Statuses()
	all := a.deps.Layers.Catalog().All()
	out := make([]datasetSummary, 0, len(all))
	for _, d := range all {
		out = append(out, datasetSummary{
			Name:      d.Name,
			Title:     d.Title,
			Layer:     d.Layer.Kind,
			Timestamp: d.Timestamp,
			Strict:    d.Strict,
			Status:    st[d.Name],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, err := a.deps.Layers.Catalog().Get(name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	year, err := years.ParseYear(r.URL.Query().Get("year"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	where, err := parseWhere(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	snap, err := a.deps.Layers.Records(r.Context(), name, where)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	recs := snap.Records
	if d.Timestamp != "" {
		recs = years.Filter(recs, d.Timestamp, year)
	}
	if recs == nil {
		recs = []schema.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *api) handleYears(w http.ResponseWriter, r *http.Request) {
	ys, err := a.deps.Layers.Years(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ys)
}

func (a *api) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	req, err := ParseGeoJSONRequest(r, chi.URLParam(r, "name"), a.cfg.HeatmapH3Res)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.deps.Layers.Collection(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, "application/geo+json", b)
}

func (a *api) handleMap(w http.ResponseWriter, r *http.Request) {
	if err := a.cfg.Require(config.PathMap); err != nil {
		a.fail(w, r, err)
		return
	}
	m := layers.NewMap(layers.MapSettings{
		AccessToken: a.cfg.MapAccessToken,
		StyleURL:    a.cfg.MapStyleURL,
		CenterLng:   a.cfg.MapCenterLng,
		CenterLat:   a.cfg.MapCenterLat,
		Zoom:        a.cfg.MapZoom,
	}, a.deps.Layers.Catalog())
	writeJSON(w, http.StatusOK, m)
}

// ParseGeoJSONRequest reads year, bin, res and where for dataset name.
// defRes applies when bin=h3 carries no res.
func ParseGeoJSONRequest(r *http.Request, name string, defRes int) (layers.Request, error) {
	q := r.URL.Query()
	year, err := years.ParseYear(q.Get("year"))
	if err != nil {
		return layers.Request{}, err
	}
	res, err := layers.ParseRes(q.Get("bin"), q.Get("res"), defRes)
	if err != nil {
		return layers.Request{}, badRequest(err)
	}
	where, err := parseWhere(r)
	if err != nil {
		return layers.Request{}, err
	}
	return layers.Request{Dataset: name, Year: year, Res: res, Where: where}, nil
}

var safeWherePattern = regexp.MustCompile(`^[\w\s\=\>\<\!\(\)\.\,\'\"\-\:\%]+$`)

func parseWhere(r *http.Request) (string, error) {
	where := strings.TrimSpace(r.URL.Query().Get("where"))
	if where == "" {
		return "", nil
	}
	if len(where) > 500 || !safeWherePattern.MatchString(where) {
		return "", badRequest(errors.New("invalid or disallowed where clause"))
	}
	return where, nil
}
