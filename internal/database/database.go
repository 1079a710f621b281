package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Options configure the device database.
type Options struct {
	// Loader fetches the XML export. Nil with CacheOnly set serves the
	// SQLite cache exclusively.
	Loader *Loader

	// Store persists parsed entities. Required.
	Store *Store

	// CacheOnly skips the fetch and serves whatever the cache holds.
	CacheOnly bool

	// Filters are applied to each entity during parsing, in order.
	Filters []Filter

	// ExcludePaths drops entities whose hierarchy path starts with any
	// of these prefixes (service areas, plant rooms).
	ExcludePaths []string

	// Synonyms are groups of interchangeable words for name search.
	Synonyms [][]string

	Logger Logger
}

// Database is the queryable device catalogue: the processor's area and
// output tree, filtered, cached in SQLite and indexed in memory.
//
// Thread Safety: all query methods are safe for concurrent use; Refresh
// swaps the in-memory set atomically.
type Database struct {
	loader       *Loader
	store        *Store
	cacheOnly    bool
	filters      []Filter
	excludePaths []string
	synonyms     [][]string
	logger       Logger

	mu       sync.RWMutex
	entities []Entity
}

// New creates the device database. Call Refresh to populate it.
func New(opts Options) (*Database, error) {
	if opts.Store == nil {
		return nil, errors.New("database: store is required")
	}
	if opts.Loader == nil && !opts.CacheOnly {
		return nil, errors.New("database: loader is required unless cache-only")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Database{
		loader:       opts.Loader,
		store:        opts.Store,
		cacheOnly:    opts.CacheOnly,
		filters:      opts.Filters,
		excludePaths: opts.ExcludePaths,
		synonyms:     opts.Synonyms,
		logger:       logger,
	}, nil
}

// Refresh brings the catalogue up to date: fetch the export if the
// processor has a newer one, parse and filter it, persist it, and swap
// the in-memory set. Any failure on the fetch path falls back to the
// SQLite cache so a dead HTTP endpoint doesn't take the tools down.
func (d *Database) Refresh(ctx context.Context) error {
	if d.cacheOnly {
		return d.loadFromStore(ctx)
	}

	since, _, err := d.store.ExportedAt(ctx)
	if err != nil {
		d.logger.Warn("cache timestamp unreadable, fetching unconditionally", "error", err)
		since = time.Time{}
	}

	data, err := d.loader.Fetch(ctx, since)
	switch {
	case errors.Is(err, ErrNotModified):
		d.logger.Info("device database unchanged, serving cache")
		return d.loadFromStore(ctx)

	case err != nil:
		d.logger.Warn("device database fetch failed, serving cache", "error", err)
		if cacheErr := d.loadFromStore(ctx); cacheErr != nil {
			return fmt.Errorf("database: fetch failed (%w) and cache unavailable: %w", err, cacheErr)
		}
		return nil
	}

	entities, err := parseExport(data, d.filters)
	if err != nil {
		return err
	}
	entities = d.exclude(entities)

	exportedAt, ok := ParseExportTimestamp(data)
	if !ok {
		exportedAt = time.Now()
	}
	if err := d.store.Replace(ctx, entities, exportedAt); err != nil {
		return err
	}

	d.setEntities(entities)
	d.logger.Info("device database refreshed",
		"entities", len(entities),
		"exported_at", exportedAt.Format(time.RFC3339),
	)
	return nil
}

func (d *Database) loadFromStore(ctx context.Context) error {
	entities, err := d.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return errors.New("database: cache is empty")
	}
	d.setEntities(entities)
	d.logger.Info("device database loaded from cache", "entities", len(entities))
	return nil
}

func (d *Database) setEntities(entities []Entity) {
	d.mu.Lock()
	d.entities = entities
	d.mu.Unlock()
}

// exclude drops entities whose path starts with a configured prefix.
func (d *Database) exclude(entities []Entity) []Entity {
	if len(d.excludePaths) == 0 {
		return entities
	}

	kept := entities[:0]
	dropped := 0
	for _, e := range entities {
		excluded := false
		for _, prefix := range d.excludePaths {
			if strings.HasPrefix(e.Path, prefix) {
				excluded = true
				break
			}
		}
		if excluded {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	if dropped > 0 {
		d.logger.Debug("excluded entities by path prefix", "dropped", dropped)
	}
	return kept
}

func (d *Database) snapshot() []Entity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entities
}

// Count returns the number of catalogued entities.
func (d *Database) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entities)
}

// Areas returns every area in the catalogue.
func (d *Database) Areas() []Area {
	var areas []Area
	for _, e := range d.snapshot() {
		if e.Type == EntityArea {
			areas = append(areas, areaFromEntity(e))
		}
	}
	return areas
}

// AreaByIID returns the area with the given integration ID, or false.
func (d *Database) AreaByIID(iid int) (Area, bool) {
	for _, e := range d.snapshot() {
		if e.Type == EntityArea && e.IID == iid && iid != 0 {
			return areaFromEntity(e), true
		}
	}
	return Area{}, false
}

// Outputs returns every output in the catalogue.
func (d *Database) Outputs() []Output {
	var outputs []Output
	for _, e := range d.snapshot() {
		if e.Type == EntityOutput {
			outputs = append(outputs, outputFromEntity(e))
		}
	}
	return outputs
}

// OutputByIID returns the output with the given integration ID, or false.
func (d *Database) OutputByIID(iid int) (Output, bool) {
	for _, e := range d.snapshot() {
		if e.Type == EntityOutput && e.IID == iid && iid != 0 {
			return outputFromEntity(e), true
		}
	}
	return Output{}, false
}

// OutputsByType returns outputs whose type matches (case-insensitive).
func (d *Database) OutputsByType(outputType string) []Output {
	var outputs []Output
	for _, e := range d.snapshot() {
		if e.Type == EntityOutput && strings.EqualFold(e.Subtype, outputType) {
			outputs = append(outputs, outputFromEntity(e))
		}
	}
	return outputs
}

// OutputTypes returns the distinct output types in the catalogue.
func (d *Database) OutputTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, e := range d.snapshot() {
		if e.Type == EntityOutput && !seen[e.Subtype] {
			seen[e.Subtype] = true
			types = append(types, e.Subtype)
		}
	}
	return types
}

// FindAreas returns areas whose hierarchy path matches the query words
// in sequence, with configured synonyms expanded.
func (d *Database) FindAreas(query string) ([]Area, error) {
	re, err := buildSearchPattern(query, d.synonyms)
	if err != nil {
		return nil, fmt.Errorf("database: building search pattern: %w", err)
	}

	var areas []Area
	for _, e := range d.snapshot() {
		if e.Type == EntityArea && matchPath(re, e) {
			areas = append(areas, areaFromEntity(e))
		}
	}
	return areas, nil
}

// FindOutputs returns outputs whose hierarchy path matches the query
// words in sequence, with configured synonyms expanded.
func (d *Database) FindOutputs(query string) ([]Output, error) {
	return d.findOutputs(query, "")
}

// FindOutputsByType is FindOutputs restricted to one output type.
func (d *Database) FindOutputsByType(outputType, query string) ([]Output, error) {
	return d.findOutputs(query, outputType)
}

func (d *Database) findOutputs(query, outputType string) ([]Output, error) {
	re, err := buildSearchPattern(query, d.synonyms)
	if err != nil {
		return nil, fmt.Errorf("database: building search pattern: %w", err)
	}

	var outputs []Output
	for _, e := range d.snapshot() {
		if e.Type != EntityOutput {
			continue
		}
		if outputType != "" && !strings.EqualFold(e.Subtype, outputType) {
			continue
		}
		if matchPath(re, e) {
			outputs = append(outputs, outputFromEntity(e))
		}
	}
	return outputs, nil
}
