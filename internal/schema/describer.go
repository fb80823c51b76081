// Package schema describes the queryable tables to the text generator.
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/daap14/askdb/internal/engine"
)

// DefaultTTL is how long an introspected description is served before
// the catalog is read again.
const DefaultTTL = time.Hour

// TableSource lists the tables that may be described.
type TableSource func() []string

// Describer introspects tables through the gateway and caches the result.
type Describer struct {
	introspector engine.Introspector
	source       TableSource
	cache        Cache
	ttl          time.Duration
	group        singleflight.Group
}

// NewDescriber creates a Describer. A zero ttl uses DefaultTTL.
func NewDescriber(introspector engine.Introspector, source TableSource, cache Cache, ttl time.Duration) *Describer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Describer{
		introspector: introspector,
		source:       source,
		cache:        cache,
		ttl:          ttl,
	}
}

// Tables returns the described tables, from cache when fresh. Concurrent
// misses for the same table set share one introspection pass.
func (d *Describer) Tables(ctx context.Context) ([]engine.Table, error) {
	names := normalize(d.source())
	key := cacheKey(names)

	tables, ok, err := d.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("schema cache read failed; introspecting", "error", err)
	}
	if ok {
		return tables, nil
	}

	v, err, _ := d.group.Do(key, func() (any, error) {
		tables, err := d.introspect(ctx, names)
		if err != nil {
			return nil, err
		}
		if err := d.cache.Set(ctx, key, tables, d.ttl); err != nil {
			slog.Warn("schema cache write failed", "error", err)
		}
		return tables, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]engine.Table), nil
}

// Describe returns the textual description of the tables accepted by
// allow. A nil allow accepts every table.
func (d *Describer) Describe(ctx context.Context, allow func(table string) bool) (string, error) {
	tables, err := d.Tables(ctx)
	if err != nil {
		return "", err
	}
	return Render(tables, allow), nil
}

func (d *Describer) introspect(ctx context.Context, names []string) ([]engine.Table, error) {
	tables := make([]engine.Table, 0, len(names))
	for _, name := range names {
		cols, err := d.introspector.ListColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("listing columns for %s: %w", name, err)
		}
		if len(cols) == 0 {
			slog.Warn("whitelisted table not found in database", "table", name)
			continue
		}
		tables = append(tables, engine.Table{Name: name, Columns: cols})
	}
	return tables, nil
}

// Render formats tables as one block per table with a line per column.
func Render(tables []engine.Table, allow func(table string) bool) string {
	var b strings.Builder
	for _, t := range tables {
		if allow != nil && !allow(t.Name) {
			continue
		}
		fmt.Fprintf(&b, "Table: %s\n", t.Name)
		for _, c := range t.Columns {
			null := "NOT NULL"
			if c.Nullable {
				null = "NULL"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s)\n", c.Name, c.DeclaredType, null)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func normalize(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}

func cacheKey(names []string) string {
	sum := sha256.Sum256([]byte(strings.Join(names, ",")))
	return hex.EncodeToString(sum[:8])
}
