package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Cache is an in-memory transcript catalogue indexed by locus, id and gene.
// It is filled by the loaders and then only read.
type Cache struct {
	mu      sync.RWMutex
	records map[string][]*Record // by chromosome
	trees   map[string]*IntervalTree
	byID    map[string]*Record
	byGene  map[string][]*Record
}

// New creates a new empty cache.
func New() *Cache {
	return &Cache{
		records: make(map[string][]*Record),
		trees:   make(map[string]*IntervalTree),
		byID:    make(map[string]*Record),
		byGene:  make(map[string][]*Record),
	}
}

// AddRecord adds a transcript record to the cache.
func (c *Cache) AddRecord(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Start == 0 && r.End == 0 {
		for _, e := range r.Exons {
			if r.Start == 0 || e.Start < r.Start {
				r.Start = e.Start
			}
			if e.End > r.End {
				r.End = e.End
			}
		}
	}
	c.records[r.Chrom] = append(c.records[r.Chrom], r)
	delete(c.trees, r.Chrom)
	c.byID[r.ID] = r
	if base := stripVersion(r.ID); base != r.ID {
		if _, ok := c.byID[base]; !ok {
			c.byID[base] = r
		}
	}
	if r.GeneName != "" {
		key := strings.ToUpper(r.GeneName)
		c.byGene[key] = append(c.byGene[key], r)
	}
}

// TranscriptsOverlapping returns all records whose span contains pos.
func (c *Cache) TranscriptsOverlapping(_ context.Context, chrom string, pos int64) ([]*Record, error) {
	return c.tree(chrom).FindOverlaps(pos), nil
}

// TranscriptByID returns a record by id, with or without version suffix.
func (c *Cache) TranscriptByID(_ context.Context, id string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.byID[id]; ok {
		return r, nil
	}
	if r, ok := c.byID[stripVersion(id)]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// TranscriptsByGene returns the records of a gene symbol, ordered by id.
func (c *Cache) TranscriptsByGene(_ context.Context, gene string) ([]*Record, error) {
	c.mu.RLock()
	recs := c.byGene[strings.ToUpper(gene)]
	out := make([]*Record, len(recs))
	copy(out, recs)
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// tree returns the interval index of a chromosome, building it on first use.
func (c *Cache) tree(chrom string) *IntervalTree {
	c.mu.RLock()
	t, ok := c.trees[chrom]
	c.mu.RUnlock()
	if ok {
		return t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.trees[chrom]; ok {
		return t
	}
	t = BuildIntervalTree(c.records[chrom])
	c.trees[chrom] = t
	return t
}

// TranscriptCount returns the total number of records in the cache.
func (c *Cache) TranscriptCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, recs := range c.records {
		count += len(recs)
	}
	return count
}

// Chromosomes returns a sorted list of chromosomes in the cache.
func (c *Cache) Chromosomes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chroms := make([]string, 0, len(c.records))
	for chrom := range c.records {
		chroms = append(chroms, chrom)
	}
	sort.Strings(chroms)
	return chroms
}

// RecordsByChrom returns the records of a chromosome in insertion order.
func (c *Cache) RecordsByChrom(chrom string) []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Record, len(c.records[chrom]))
	copy(out, c.records[chrom])
	return out
}

// Records returns every record, grouped by chromosome in sorted order.
func (c *Cache) Records() []*Record {
	var out []*Record
	for _, chrom := range c.Chromosomes() {
		out = append(out, c.RecordsByChrom(chrom)...)
	}
	return out
}
