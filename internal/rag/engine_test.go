package rag

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm/llmtest"
	"github.com/haasonsaas/charlotte/internal/storage/vectorstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type entity struct {
	ID string
}

// unit returns a 2-d vector whose cosine with (1, 0) is score.
func unit(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score))}
}

var query = []float32{1, 0}

type fixture struct {
	text    []string
	textErr error
	known   map[string]bool
	store   *vectorstore.Memory
	fake    *llmtest.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		text:  []string{"a", "b", "x"},
		known: map[string]bool{"a": true, "b": true, "c": true, "d": true, "e": true, "x": true},
		store: vectorstore.NewMemory(),
		fake:  &llmtest.Fake{Dimension: 2},
	}
	for _, c := range []string{"summaries", "keypoints"} {
		if err := f.store.EnsureCollection(ctx, c, 2); err != nil {
			t.Fatal(err)
		}
	}
	mustUpsert(t, f.store, "summaries", map[string]float64{"c": 0.9, "a": 0.8, "d": 0.5})
	mustUpsert(t, f.store, "keypoints", map[string]float64{"d": 0.95, "e": 0.3})
	return f
}

func mustUpsert(t *testing.T, s vectorstore.Store, collection string, scores map[string]float64) {
	t.Helper()
	for id, score := range scores {
		if err := s.Upsert(context.Background(), collection, vectorstore.Point{ID: id, Vector: unit(score)}); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) source() Source[entity] {
	return Source[entity]{
		Name: "entities",
		Search: func(_ context.Context, _ string, limit int) ([]entity, error) {
			if f.textErr != nil {
				return nil, f.textErr
			}
			var out []entity
			for _, id := range f.text {
				if len(out) == limit {
					break
				}
				out = append(out, entity{ID: id})
			}
			return out, nil
		},
		Key: func(e entity) string { return e.ID },
		Get: func(_ context.Context, id string) (entity, error) {
			if !f.known[id] {
				return entity{}, errdefs.NotFound("entity", id)
			}
			return entity{ID: id}, nil
		},
		Collections: []string{"summaries", "keypoints"},
	}
}

func (f *fixture) engine(t *testing.T, src Source[entity]) *Engine[entity] {
	t.Helper()
	e, err := NewEngine(src, f.store, f.fake)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestFuseOrdering(t *testing.T) {
	tests := []struct {
		name string
		k    int
		want []string
	}{
		// text limit 3: a b x; vectors by score: d(.95) c(.9) a(.8) d(.5) e(.3)
		{name: "text hits first then vector hits", k: 6, want: []string{"a", "b", "x", "d", "c", "e"}},
		// text limit 2: a b
		{name: "truncated to k", k: 4, want: []string{"a", "b", "d", "c"}},
		// text limit 0: vectors only
		{name: "k of one skips text search", k: 1, want: []string{"d"}},
		{name: "zero k", k: 0, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			got, err := f.engine(t, f.source()).Fuse(context.Background(), "meeting", query, tt.k)
			if err != nil {
				t.Fatalf("Fuse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Fuse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFuseIsIdempotentAndDeduplicated(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, f.source())
	ctx := context.Background()

	first, err := e.Fuse(ctx, "meeting", query, 10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Fuse(ctx, "meeting", query, 10)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Fuse() not idempotent (-first +second):\n%s", diff)
	}
	seen := map[string]bool{}
	for _, id := range first {
		if seen[id] {
			t.Errorf("id %s appears twice in %v", id, first)
		}
		seen[id] = true
	}
}

func TestFuseEmptyQuery(t *testing.T) {
	f := newFixture(t)
	got, err := f.engine(t, f.source()).Fuse(context.Background(), "", nil, 10)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Fuse(\"\") = %v, want empty", got)
	}
	if f.fake.EmbedCalls() != 0 {
		t.Errorf("empty query embedded %d times", f.fake.EmbedCalls())
	}
}

func TestFuseEmbedsMissingQueryVector(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine(t, f.source()).Fuse(context.Background(), "meeting", nil, 4); err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if diff := cmp.Diff([]string{"meeting"}, f.fake.Embedded()); diff != "" {
		t.Errorf("embedded texts mismatch (-want +got):\n%s", diff)
	}

	// A supplied vector is used as is.
	if _, err := f.engine(t, f.source()).Fuse(context.Background(), "meeting", query, 4); err != nil {
		t.Fatal(err)
	}
	if f.fake.EmbedCalls() != 1 {
		t.Errorf("EmbedCalls() = %d, want 1", f.fake.EmbedCalls())
	}
}

func TestFusePropagatesBackendErrors(t *testing.T) {
	t.Run("text search", func(t *testing.T) {
		f := newFixture(t)
		f.textErr = errdefs.Backend("textindex.search", "disk I/O error", nil)
		_, err := f.engine(t, f.source()).Fuse(context.Background(), "meeting", query, 4)
		if !errors.Is(err, errdefs.ErrBackendUnavailable) {
			t.Fatalf("Fuse() error = %v, want backend unavailable", err)
		}
	})
	t.Run("vector search", func(t *testing.T) {
		f := newFixture(t)
		src := f.source()
		src.Collections = append(src.Collections, "missing")
		_, err := f.engine(t, src).Fuse(context.Background(), "meeting", query, 4)
		if !errors.Is(err, errdefs.ErrNotFound) {
			t.Fatalf("Fuse() error = %v, want not found", err)
		}
	})
	t.Run("embedder", func(t *testing.T) {
		f := newFixture(t)
		f.fake.EmbedErr = llmtest.ErrScripted
		_, err := f.engine(t, f.source()).Fuse(context.Background(), "meeting", nil, 4)
		if !errors.Is(err, llmtest.ErrScripted) {
			t.Fatalf("Fuse() error = %v, want scripted failure", err)
		}
	})
}

func TestFuseMapsPointIDs(t *testing.T) {
	f := newFixture(t)
	src := f.source()
	src.Collections = []string{"keypoints"}
	// Points are stored under vector ids; "e" has no entity any more.
	src.PointKey = func(_ context.Context, pointID string) (string, error) {
		if pointID == "e" {
			return "", errdefs.NotFound("entity", pointID)
		}
		return "name-" + pointID, nil
	}
	f.text = nil

	got, err := f.engine(t, src).Fuse(context.Background(), "meeting", query, 4)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"name-d"}, got); diff != "" {
		t.Errorf("Fuse() mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryResolvesEntities(t *testing.T) {
	f := newFixture(t)
	delete(f.known, "c") // vector hit whose entity was removed

	got, err := f.engine(t, f.source()).Query(context.Background(), "meeting", query, 6)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []entity{{"a"}, {"b"}, {"x"}, {"d"}, {"e"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Query() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name   string
		text   []string
		vector []string
		k      int
		want   []string
	}{
		{name: "text wins duplicates", text: []string{"a", "b"}, vector: []string{"b", "c"}, k: 5, want: []string{"a", "b", "c"}},
		{name: "truncates", text: []string{"a"}, vector: []string{"b", "c"}, k: 2, want: []string{"a", "b"}},
		{name: "empty", k: 3, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Merge(tt.text, tt.vector, tt.k)); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewEngineValidatesSource(t *testing.T) {
	if _, err := NewEngine(Source[entity]{Name: "bad"}, vectorstore.NewMemory(), &llmtest.Fake{}); err == nil {
		t.Error("expected error for a source without callbacks")
	}
}
