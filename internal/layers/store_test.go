package layers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/opendata-map/internal/cache/keys"
	"github.com/mohammed-shakir/opendata-map/internal/cache/redisstore"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/geojson"
	"github.com/mohammed-shakir/opendata-map/internal/schema"
	"github.com/mohammed-shakir/opendata-map/internal/socrata"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const outagesEndpoint = "https://data.cityofnewyork.us/resource/br6j-yp22.json"

// outage returns a raw record with every required outage field set.
func outage(key, created, lat, lng string) json.RawMessage {
	m := map[string]any{
		"unique_key": key, "created_date": created, "agency": "DOE", "agency_name": "Department of Energy",
		"complaint_type": "Electric", "descriptor": "Power Outage", "location_type": "Street",
		"incident_address": "1 MAIN ST", "street_name": "MAIN ST", "status": "Closed",
		"community_board": "01 BROOKLYN", "borough": "BROOKLYN",
		"park_facility_name": "Unspecified", "park_borough": "BROOKLYN",
	}
	if lat != "" {
		m["latitude"] = lat
	}
	if lng != "" {
		m["longitude"] = lng
	}
	b, _ := json.Marshal(m)
	return b
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int32
	queries []socrata.Query
	data    map[string][]json.RawMessage
	err     map[string]error
	delay   time.Duration
}

func (f *fakeFetcher) FetchAll(ctx context.Context, endpoint string, q socrata.Query) ([]json.RawMessage, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.err[endpoint]; err != nil {
		return nil, err
	}
	return f.data[endpoint], nil
}

func newStore(t *testing.T, f Fetcher, withCache bool) (*Store, *miniredis.Miniredis) {
	t.Helper()
	var mr *miniredis.Miniredis
	var s *Store
	var err error
	if withCache {
		mr = miniredis.RunT(t)
		rc, cerr := redisstore.New(context.Background(), mr.Addr())
		require.NoError(t, cerr)
		t.Cleanup(func() { _ = rc.Close() })
		s, err = New(discard(), dataset.Default(), f, rc, Options{Size: 4, CacheTTL: time.Minute})
	} else {
		s, err = New(discard(), dataset.Default(), f, nil, Options{Size: 4})
	}
	require.NoError(t, err)
	return s, mr
}

func TestOutageScenario_YearFilterDropsMissingCoordinates(t *testing.T) {
	f := &fakeFetcher{data: map[string][]json.RawMessage{
		outagesEndpoint: {
			outage("1", "2024-03-01T10:00:00.000", "40.7", "-73.9"),
			outage("2", "2024-06-01T10:00:00.000", "", "-73.8"),
		},
	}}
	s, _ := newStore(t, f, false)

	fc, err := s.FeatureCollection(context.Background(), Request{Dataset: "outages", Year: "2024", Res: keys.Points})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, [2]float64{-73.9, 40.7}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, 1, fc.Features[0].Properties[geojson.PropIncidents])

	ys, err := s.Years(context.Background(), "outages")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024"}, ys)
	assert.EqualValues(t, 1, f.calls, "snapshot should be reused")
}

func TestRecords_ValidationFailureRecordedInStatus(t *testing.T) {
	bad := json.RawMessage(`{"unique_key":"1"}`)
	f := &fakeFetcher{data: map[string][]json.RawMessage{outagesEndpoint: {bad}}}
	s, _ := newStore(t, f, false)

	_, err := s.Records(context.Background(), "outages", "")
	var ve *schema.ValidationError
	require.True(t, errors.As(err, &ve))
	st := s.Statuses()["outages"]
	assert.False(t, st.Loaded)
	assert.Contains(t, st.Error, "required field missing")
	assert.False(t, s.Ready([]string{"outages"}))
}

func TestRecords_ConcurrentCallersShareOneFetch(t *testing.T) {
	f := &fakeFetcher{
		data:  map[string][]json.RawMessage{outagesEndpoint: {outage("1", "2024-01-01", "40.7", "-73.9")}},
		delay: 50 * time.Millisecond,
	}
	s, _ := newStore(t, f, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Records(context.Background(), "outages", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, f.calls)
}

// gatedFetcher holds its first call until release is closed and answers
// each call with the next batch in order.
type gatedFetcher struct {
	calls   int32
	started chan struct{}
	release chan struct{}
	batches [][]json.RawMessage
}

func newGatedFetcher(batches ...[]json.RawMessage) *gatedFetcher {
	return &gatedFetcher{started: make(chan struct{}), release: make(chan struct{}), batches: batches}
}

func (f *gatedFetcher) FetchAll(ctx context.Context, _ string, _ socrata.Query) ([]json.RawMessage, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n == 1 {
		close(f.started)
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.batches[int(n)-1], nil
}

func uniqueKeys(snap *Snapshot) []string {
	out := make([]string, 0, len(snap.Records))
	for _, r := range snap.Records {
		k, _ := r.String("unique_key")
		out = append(out, k)
	}
	return out
}

func TestLoad_InvalidateDuringLoadDiscardsOldSnapshot(t *testing.T) {
	f := newGatedFetcher(
		[]json.RawMessage{outage("old", "2024-01-01", "40.7", "-73.9")},
		[]json.RawMessage{outage("new", "2024-01-01", "40.7", "-73.9")},
	)
	s, _ := newStore(t, f, false)

	first := make(chan *Snapshot, 1)
	go func() {
		snap, err := s.Records(context.Background(), "outages", "")
		assert.NoError(t, err)
		first <- snap
	}()
	<-f.started

	require.NoError(t, s.Invalidate(context.Background(), "outages"))
	snap, err := s.Load(context.Background(), "outages", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, uniqueKeys(snap))

	close(f.release)
	assert.Equal(t, []string{"old"}, uniqueKeys(<-first))

	snap, err = s.Records(context.Background(), "outages", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, uniqueKeys(snap))
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.calls))
	assert.True(t, s.Ready([]string{"outages"}))
	assert.Equal(t, 1, s.Statuses()["outages"].Records)
}

func TestLoad_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	f := newGatedFetcher([]json.RawMessage{outage("1", "2024-01-01", "40.7", "-73.9")})
	s, _ := newStore(t, f, false)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.Records(ctxA, "outages", "")
		errA <- err
	}()
	<-f.started

	type result struct {
		snap *Snapshot
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		snap, err := s.Records(context.Background(), "outages", "")
		resB <- result{snap, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(f.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, []string{"1"}, uniqueKeys(b.snap))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.calls))
}

func TestRecords_WhereClauseCombinesWithDefault(t *testing.T) {
	f := &fakeFetcher{data: map[string][]json.RawMessage{}}
	s, _ := newStore(t, f, false)

	_, err := s.Records(context.Background(), "rat_sightings", "borough = 'BRONX'")
	require.NoError(t, err)
	require.Len(t, f.queries, 1)
	assert.Equal(t, "(created_date >= '2024-01-01T00:00:00.000') AND (borough = 'BRONX')", f.queries[0].Where)
}

func TestCollection_CachedThenInvalidated(t *testing.T) {
	f := &fakeFetcher{data: map[string][]json.RawMessage{
		outagesEndpoint: {outage("1", "2024-03-01", "40.7", "-73.9")},
	}}
	s, mr := newStore(t, f, true)
	ctx := context.Background()
	req := Request{Dataset: "outages", Year: "all", Res: keys.Points}

	first, err := s.Collection(ctx, req)
	require.NoError(t, err)
	assert.True(t, mr.Exists(keys.Key("outages", keys.Points, "all", "")))

	var fc geojson.FeatureCollection
	require.NoError(t, sonic.Unmarshal(first, &fc))
	assert.Len(t, fc.Features, 1)

	second, err := s.Collection(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, f.calls)

	require.NoError(t, s.Invalidate(ctx, "outages"))
	assert.Empty(t, mr.Keys())

	_, err = s.Collection(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls, "invalidate must force a refetch")
}

func TestCollection_CacheFailureFallsBackToPipeline(t *testing.T) {
	f := &fakeFetcher{data: map[string][]json.RawMessage{
		outagesEndpoint: {outage("1", "2024-03-01", "40.7", "-73.9")},
	}}
	s, mr := newStore(t, f, true)
	mr.Close()

	b, err := s.Collection(context.Background(), Request{Dataset: "outages", Res: keys.Points})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"FeatureCollection"`)
}

func TestCollection_H3Binning(t *testing.T) {
	f := &fakeFetcher{data: map[string][]json.RawMessage{
		outagesEndpoint: {
			outage("1", "2024-03-01", "40.74840", "-73.98570"),
			outage("2", "2024-03-02", "40.74841", "-73.98571"),
		},
	}}
	s, _ := newStore(t, f, false)

	fc, err := s.FeatureCollection(context.Background(), Request{Dataset: "outages", Res: 7})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, 2, fc.Features[0].Properties[geojson.PropIncidents])
}

func TestPreload_LogsFailuresAndContinues(t *testing.T) {
	f := &fakeFetcher{
		data: map[string][]json.RawMessage{outagesEndpoint: {outage("1", "2024-03-01", "40.7", "-73.9")}},
		err:  map[string]error{"https://data.cityofnewyork.us/resource/fc53-9hrv.json": errors.New("boom")},
	}
	s, _ := newStore(t, f, false)

	err := s.Preload(context.Background(), []string{"outages", "ev_stations"}, 2)
	require.NoError(t, err)

	st := s.Statuses()
	assert.True(t, st["outages"].Loaded)
	assert.Equal(t, 1, st["outages"].Records)
	assert.False(t, st["ev_stations"].Loaded)
	assert.Contains(t, st["ev_stations"].Error, "boom")
	assert.False(t, st["projects"].Loaded)
	assert.True(t, s.Ready([]string{"outages"}))
	assert.False(t, s.Ready([]string{"outages", "ev_stations"}))

	assert.ErrorIs(t, s.Preload(context.Background(), []string{"nope"}, 1), dataset.ErrUnknown)
}

func TestUnknownDataset(t *testing.T) {
	s, _ := newStore(t, &fakeFetcher{}, false)
	_, err := s.Collection(context.Background(), Request{Dataset: "nope"})
	assert.ErrorIs(t, err, dataset.ErrUnknown)
	assert.ErrorIs(t, s.Invalidate(context.Background(), "nope"), dataset.ErrUnknown)
}

func TestParseRes(t *testing.T) {
	cases := []struct {
		bin, res string
		want     int
		ok       bool
	}{
		{"", "", keys.Points, true},
		{"points", "7", keys.Points, true},
		{"h3", "", 9, true},
		{"H3", "6", 6, true},
		{"h3", "16", 0, false},
		{"h3", "x", 0, false},
		{"s2", "", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseRes(tc.bin, tc.res, 9)
		if !tc.ok {
			assert.Error(t, err, "%s/%s", tc.bin, tc.res)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}
