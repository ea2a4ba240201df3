package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/schema"
)

const maxBodyBytes = 1 << 20

type recommendRequest struct {
	Project json.RawMessage `json:"project" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (a *api) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if a.deps.Recommender == nil {
		err := a.cfg.Require(config.PathRecommend)
		if err == nil {
			err = &config.ConfigurationError{Key: "llm_api_key", Path: config.PathRecommend}
		}
		a.fail(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.failWith(w, r, http.StatusRequestEntityTooLarge, err)
			return
		}
		a.fail(w, r, badRequest(fmt.Errorf("read body: %w", err)))
		return
	}
	var req recommendRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		a.fail(w, r, badRequest(fmt.Errorf("decode body: %w", err)))
		return
	}
	if err := validate.Struct(req); err != nil || bytes.Equal(bytes.TrimSpace(req.Project), []byte("null")) {
		a.fail(w, r, badRequest(errors.New(`body must be {"project": {...}}`)))
		return
	}

	d, err := a.deps.Layers.Catalog().Get(dataset.Projects)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	project, err := d.Schema().ValidateOne(req.Project)
	if err != nil {
		var valErr *schema.ValidationError
		if errors.As(err, &valErr) {
			a.failWith(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		a.fail(w, r, err)
		return
	}

	rec, err := a.deps.Recommender.Recommend(r.Context(), project)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
