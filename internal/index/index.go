// Package index assembles per-unit records into a classified program index.
package index

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mayflower/rpg-explainer/internal/extract"
	"github.com/mayflower/rpg-explainer/internal/graph"
	"github.com/mayflower/rpg-explainer/internal/model"
	"github.com/mayflower/rpg-explainer/internal/parse"
)

// RecordCache stores unclassified records by unit path and content.
type RecordCache interface {
	Get(path string, source []byte) (model.FileRecord, bool, error)
	Put(path string, source []byte, rec model.FileRecord) error
}

// Result is the outcome of analyzing one unit.
type Result struct {
	Path   string
	Record model.FileRecord
	Err    error
}

type options struct {
	workers int
	cache   RecordCache
	warn    io.Writer
	done    func(Result)
}

// Option configures Analyze and Build.
type Option func(*options)

// WithWorkers sets the number of units analyzed concurrently. Values below
// one select runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithCache reuses records of units whose path and content are unchanged.
func WithCache(c RecordCache) Option {
	return func(o *options) { o.cache = c }
}

// WithWarnings sets where cache failures are reported. Cache failures never
// fail the analysis.
func WithWarnings(w io.Writer) Option {
	return func(o *options) { o.warn = w }
}

// WithProgress registers a callback invoked as each unit finishes. It may be
// called from several goroutines at once.
func WithProgress(fn func(Result)) Option {
	return func(o *options) { o.done = fn }
}

// AnalyzeFile runs the per-unit pass. Call targets are left unclassified.
func AnalyzeFile(u *parse.Unit) (model.FileRecord, error) {
	return extract.File(u.Path, u.Root, u.Source)
}

// Analyze runs the per-unit pass over units and returns one result per unit
// in input order. A failing unit does not stop the others.
func Analyze(ctx context.Context, units []*parse.Unit, opts ...Option) []Result {
	o := options{workers: 1, warn: io.Discard}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.NumCPU()
	}

	results := make([]Result, len(units))
	g := new(errgroup.Group)
	g.SetLimit(o.workers)
	for i, u := range units {
		g.Go(func() error {
			results[i] = o.analyze(ctx, u)
			if o.done != nil {
				o.done(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *options) analyze(ctx context.Context, u *parse.Unit) Result {
	res := Result{Path: u.Path}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	if o.cache != nil {
		rec, ok, err := o.cache.Get(u.Path, u.Source)
		if err != nil {
			fmt.Fprintf(o.warn, "Warning: cache lookup for %s: %v\n", u.Path, err)
		}
		if ok {
			res.Record = rec
			return res
		}
	}

	rec, err := AnalyzeFile(u)
	if err != nil {
		res.Err = err
		return res
	}
	if o.cache != nil {
		if err := o.cache.Put(u.Path, u.Source, rec); err != nil {
			fmt.Fprintf(o.warn, "Warning: cache store for %s: %v\n", u.Path, err)
		}
	}
	res.Record = rec
	return res
}

// Assemble appends records in order and classifies every call target
// against the complete set.
func Assemble(records []model.FileRecord) *model.ProgramIndex {
	idx := model.NewProgramIndex()
	idx.Files = append(idx.Files, records...)
	graph.Classify(idx)
	return idx
}

// Build runs both passes. The first failing unit, in input order, fails the
// build.
func Build(ctx context.Context, units []*parse.Unit, opts ...Option) (*model.ProgramIndex, error) {
	results := Analyze(ctx, units, opts...)
	records := make([]model.FileRecord, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("analyzing %s: %w", r.Path, r.Err)
		}
		records = append(records, r.Record)
	}
	return Assemble(records), nil
}
