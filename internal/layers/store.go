// Package layers runs the fetch, validate and transform pipeline per dataset
// and keeps the results for the map API.
package layers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/opendata-map/internal/cache"
	"github.com/mohammed-shakir/opendata-map/internal/cache/keys"
	"github.com/mohammed-shakir/opendata-map/internal/core/observability"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/geojson"
	"github.com/mohammed-shakir/opendata-map/internal/heatmap"
	"github.com/mohammed-shakir/opendata-map/internal/logger"
	"github.com/mohammed-shakir/opendata-map/internal/schema"
	"github.com/mohammed-shakir/opendata-map/internal/socrata"
	"github.com/mohammed-shakir/opendata-map/internal/years"
)

// Fetcher is the part of the Socrata client the store needs.
type Fetcher interface {
	FetchAll(ctx context.Context, endpoint string, q socrata.Query) ([]json.RawMessage, error)
}

// Snapshot is the validated content of one dataset query. It is never
// mutated after the load that produced it.
type Snapshot struct {
	Dataset  string
	Where    string
	Records  []schema.Record
	Dropped  int
	LoadedAt time.Time
}

type Options struct {
	// Size bounds the number of snapshots kept in memory.
	Size           int
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration
	// LoadTimeout bounds one shared load. Loads outlive the caller that
	// started them so other waiters are not cancelled with it.
	LoadTimeout time.Duration
}

type Store struct {
	logger  *slog.Logger
	catalog *dataset.Catalog
	fetcher Fetcher
	cache   cache.Interface
	opts    Options

	snaps *lru.Cache[string, *Snapshot]
	group singleflight.Group

	mu     sync.Mutex
	status map[string]Status
	// gen is bumped by Invalidate; loads started under an older value do
	// not publish their snapshot.
	gen map[string]uint64
}

// New builds a store. fc may be nil to disable the FeatureCollection cache.
func New(logger *slog.Logger, catalog *dataset.Catalog, fetcher Fetcher, fc cache.Interface, opts Options) (*Store, error) {
	if opts.Size <= 0 {
		opts.Size = 16
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheOpTimeout <= 0 {
		opts.CacheOpTimeout = 250 * time.Millisecond
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 2 * time.Minute
	}
	snaps, err := lru.New[string, *Snapshot](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("layer lru: %w", err)
	}
	return &Store{
		logger:  logger,
		catalog: catalog,
		fetcher: fetcher,
		cache:   fc,
		opts:    opts,
		snaps:   snaps,
		status:  make(map[string]Status),
		gen:     make(map[string]uint64),
	}, nil
}

func (s *Store) Catalog() *dataset.Catalog { return s.catalog }

func snapKey(name, where string) string {
	return name + "\x00" + strings.TrimSpace(where)
}

// Records returns the snapshot for name, loading it on first use. where adds
// a $where clause on top of the dataset default and is kept as its own
// snapshot.
func (s *Store) Records(ctx context.Context, name, where string) (*Snapshot, error) {
	if _, err := s.catalog.Get(name); err != nil {
		return nil, err
	}
	if snap, ok := s.snaps.Get(snapKey(name, where)); ok {
		return snap, nil
	}
	return s.Load(ctx, name, where)
}

// Load fetches and validates name now, replacing any held snapshot.
// Concurrent loads of the same query share one fetch; a load started before
// the last Invalidate of name is never joined.
func (s *Store) Load(ctx context.Context, name, where string) (*Snapshot, error) {
	d, err := s.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	gen := s.gen[name]
	s.mu.Unlock()

	key := snapKey(name, where) + "\x00" + strconv.FormatUint(gen, 10)
	ch := s.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.LoadTimeout)
		defer cancel()
		return s.load(lctx, d, where, gen)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load %s: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Store) load(ctx context.Context, d *dataset.Descriptor, where string, gen uint64) (*Snapshot, error) {
	start := time.Now()
	ctx = logger.WithDataset(ctx, d.Name)
	q := socrata.Query{Select: d.Query.Select, Where: d.Query.Where, Order: d.Query.Order}.And(where)

	raw, err := s.fetcher.FetchAll(ctx, d.Endpoint, q)
	if err == nil {
		var snap *Snapshot
		snap, err = s.validate(d, where, raw)
		if err == nil {
			if !s.publish(d.Name, where, gen, snap) {
				s.logger.InfoContext(ctx, "dataset invalidated during load, snapshot discarded")
				return snap, nil
			}
			observability.ObserveLayerLoad(d.Name, len(snap.Records), nil)
			s.logger.InfoContext(ctx, "dataset loaded", "records", len(snap.Records),
				"dropped_fields", snap.Dropped, "duration", time.Since(start).String())
			return snap, nil
		}
	}
	observability.ObserveLayerLoad(d.Name, 0, err)
	if where == "" {
		s.setStatus(d.Name, gen, Status{Error: err.Error()})
	}
	return nil, fmt.Errorf("load %s: %w", d.Name, err)
}

// publish stores snap unless name was invalidated after the load began.
func (s *Store) publish(name, where string, gen uint64, snap *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[name] != gen {
		return false
	}
	s.snaps.Add(snapKey(name, where), snap)
	if where == "" {
		s.status[name] = Status{Loaded: true, Records: len(snap.Records), LoadedAt: snap.LoadedAt}
	}
	return true
}

func (s *Store) validate(d *dataset.Descriptor, where string, raw []json.RawMessage) (*Snapshot, error) {
	recs, st, err := d.Schema().ValidateAll(raw)
	if err != nil {
		observability.IncValidationFailure(d.Name)
		return nil, err
	}
	observability.AddRecordsValidated(d.Name, st.Records)
	observability.AddFieldsDropped(d.Name, st.DroppedFields)
	return &Snapshot{
		Dataset:  d.Name,
		Where:    where,
		Records:  recs,
		Dropped:  st.DroppedFields,
		LoadedAt: time.Now().UTC(),
	}, nil
}

// Request selects one FeatureCollection.
type Request struct {
	Dataset string
	// Year is years.All or a four digit year.
	Year string
	// Res is an H3 resolution, or keys.Points for raw points.
	Res   int
	Where string
}

// Collection returns the encoded FeatureCollection for req, serving it from
// the cache when one is configured.
func (s *Store) Collection(ctx context.Context, req Request) ([]byte, error) {
	d, err := s.catalog.Get(req.Dataset)
	if err != nil {
		return nil, err
	}
	if req.Year == "" {
		req.Year = years.All
	}
	key := keys.Key(d.Name, req.Res, req.Year, req.Where)
	if b, ok := s.cacheGet(ctx, key); ok {
		return b, nil
	}

	fc, err := s.FeatureCollection(ctx, req)
	if err != nil {
		return nil, err
	}
	b, err := sonic.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode feature collection: %w", err)
	}
	s.cacheSet(ctx, key, b)
	return b, nil
}

// FeatureCollection runs transform, year filter and optional binning.
func (s *Store) FeatureCollection(ctx context.Context, req Request) (geojson.FeatureCollection, error) {
	d, err := s.catalog.Get(req.Dataset)
	if err != nil {
		return geojson.FeatureCollection{}, err
	}
	snap, err := s.Records(ctx, req.Dataset, req.Where)
	if err != nil {
		return geojson.FeatureCollection{}, err
	}
	year := req.Year
	if year == "" {
		year = years.All
	}
	recs := snap.Records
	if d.Timestamp != "" {
		recs = years.Filter(recs, d.Timestamp, year)
	}
	fc, st := geojson.TransformStats(recs, d)
	observability.ObserveFeatures(d.Name, st.Built, st.Dropped)
	if st.Dropped > 0 {
		s.logger.Debug("records without coordinates dropped", "dataset", d.Name, "dropped", st.Dropped)
	}
	if req.Res == keys.Points {
		return fc, nil
	}
	return heatmap.Bin(fc, req.Res)
}

// Years lists the distinct years of a dataset, newest first.
func (s *Store) Years(ctx context.Context, name string) ([]string, error) {
	d, err := s.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	snap, err := s.Records(ctx, name, "")
	if err != nil {
		return nil, err
	}
	if d.Timestamp == "" {
		return []string{}, nil
	}
	return years.Years(snap.Records, d.Timestamp), nil
}

// Invalidate drops every snapshot and cached collection of name. The next
// request reloads from upstream.
func (s *Store) Invalidate(ctx context.Context, name string) error {
	if _, err := s.catalog.Get(name); err != nil {
		return err
	}
	prefix := name + "\x00"
	s.mu.Lock()
	s.gen[name]++
	for _, k := range s.snaps.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.snaps.Remove(k)
		}
	}
	delete(s.status, name)
	s.mu.Unlock()

	if s.cache == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.CacheOpTimeout)
	defer cancel()
	n, err := s.cache.DelPrefix(cctx, keys.Prefix(name))
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", name, err)
	}
	s.logger.Info("dataset invalidated", "dataset", name, "cached_collections", n)
	return nil
}

// Preload loads names with at most parallel loads in flight. Failures are
// logged and recorded in Status; Preload itself only fails on an unknown
// name.
func (s *Store) Preload(ctx context.Context, names []string, parallel int) error {
	for _, n := range names {
		if _, err := s.catalog.Get(n); err != nil {
			return err
		}
	}
	if parallel <= 0 {
		parallel = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, n := range names {
		g.Go(func() error {
			if _, err := s.Load(gctx, n, ""); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				s.logger.Error("preload failed", "dataset", n, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Store) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.CacheOpTimeout)
	defer cancel()
	b, ok, err := s.cache.Get(cctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", "key", key, "err", err)
		return nil, false
	}
	return b, ok
}

func (s *Store) cacheSet(ctx context.Context, key string, b []byte) {
	if s.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.CacheOpTimeout)
	defer cancel()
	if err := s.cache.Set(cctx, key, b, s.opts.CacheTTL); err != nil {
		s.logger.Warn("cache set failed", "key", key, "err", err)
	}
}

// ParseRes reads the bin/res query pair: bin empty means points, bin "h3"
// uses res or def when res is empty.
func ParseRes(bin, res string, def int) (int, error) {
	switch strings.ToLower(strings.TrimSpace(bin)) {
	case "", "points", "none":
		return keys.Points, nil
	case "h3":
	default:
		return 0, fmt.Errorf("unsupported bin %q", bin)
	}
	if strings.TrimSpace(res) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(res))
	if err != nil || n < 0 || n > 15 {
		return 0, fmt.Errorf("invalid H3 resolution %q (must be 0..15)", res)
	}
	return n, nil
}
