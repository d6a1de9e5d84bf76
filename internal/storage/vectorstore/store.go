// Package vectorstore provides vector-similarity collections with cosine
// scoring. Backends: in-memory, SQLite (optionally int8-quantized) and
// PostgreSQL with pgvector.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/haasonsaas/charlotte/internal/errdefs"
)

// Point is a vector keyed by id within a collection.
type Point struct {
	ID     string
	Vector []float32
}

// Match is a search hit. Score is the cosine similarity in [-1, 1].
type Match struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// Store is a set of named vector collections.
type Store interface {
	// EnsureCollection creates the collection if needed. An existing
	// collection with the same dimension is not an error.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert inserts or replaces points.
	Upsert(ctx context.Context, collection string, points ...Point) error

	// Delete removes points by id. Missing ids are ignored.
	Delete(ctx context.Context, collection string, ids ...string) error

	// Search returns up to limit matches by descending score.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error)

	Close() error
}

var collectionRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func validateCollection(name string) error {
	if !collectionRe.MatchString(name) {
		return errdefs.Invalid("invalid collection name %q", name)
	}
	return nil
}

func validateDimension(collection string, want int, vec []float32) error {
	if len(vec) != want {
		return errdefs.Invalid("collection %s: vector has dimension %d, want %d", collection, len(vec), want)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero norm.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// rank sorts matches by descending score, ties broken by id, and keeps
// the first limit.
func rank(matches []Match, limit int) []Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func missingCollection(name string) error {
	return errdefs.NotFound("collection", name)
}

func describe(op, collection string, err error) error {
	return errdefs.Backend(fmt.Sprintf("vectorstore.%s %s", op, collection), err.Error(), err)
}

func checkDimension(collection string, have, want int) error {
	if have != want {
		return errdefs.Invalid("collection %s exists with dimension %d, want %d", collection, have, want)
	}
	return nil
}
