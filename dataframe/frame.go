// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

var nextID uint64

// A Frame is a partitioned dataframe backed by one or more CSV files.
// A Frame's aggregates are evaluated by its executor, partition by
// partition. A Frame is safe for concurrent use: Persist and
// Unpersist wait for aggregates in progress.
type Frame struct {
	src  Source
	exec Executor

	mu        sync.RWMutex
	persisted bool
}

// Open returns a frame of the CSV files at the provided paths, in the
// default CSV format for schema, divided into npart partitions. See
// OpenFormat.
func Open(ctx context.Context, exec Executor, schema Schema, npart int, paths ...string) (*Frame, error) {
	return OpenFormat(ctx, exec, CSV(schema), npart, paths...)
}

// OpenFormat returns a frame of the files at the provided paths,
// divided into npart partitions. Every file is assigned at least one
// partition, so the frame has max(npart, len(paths)) partitions. The
// returned frame is not persisted.
func OpenFormat(ctx context.Context, exec Executor, format Format, npart int, paths ...string) (*Frame, error) {
	switch {
	case exec == nil:
		return nil, errors.E(errors.Invalid, "dataframe.Open: nil executor")
	case len(paths) == 0:
		return nil, errors.E(errors.Invalid, "dataframe.Open: no paths")
	case npart <= 0:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("dataframe.Open: invalid partition count %d", npart))
	case len(format.Schema) == 0:
		return nil, errors.E(errors.Invalid, "dataframe.Open: empty schema")
	}
	parts, err := plan(ctx, npart, paths)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		src: Source{
			ID:         atomic.AddUint64(&nextID, 1),
			Format:     format,
			Partitions: parts,
		},
		exec: exec,
	}
	log.Debug.Printf("dataframe: opened %s over %d files", f.src, len(paths))
	return f, nil
}

// Schema returns the frame's schema.
func (f *Frame) Schema() Schema {
	return f.src.Format.Schema
}

// NumPartition returns the number of partitions in the frame.
func (f *Frame) NumPartition() int {
	return len(f.src.Partitions)
}

// Partitions returns the frame's partitions.
func (f *Frame) Partitions() []Partition {
	parts := make([]Partition, len(f.src.Partitions))
	copy(parts, f.src.Partitions)
	return parts
}

// Persist materializes the frame's partitions in executor memory.
// Subsequent aggregates read from memory instead of from files.
// Persisting a persisted frame is a no-op.
func (f *Frame) Persist(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persisted {
		return nil
	}
	if err := f.exec.Persist(ctx, f.src); err != nil {
		// Drop whatever was loaded before the failure.
		if uerr := f.exec.Unpersist(ctx, f.src); uerr != nil {
			log.Error.Printf("dataframe: unpersist %s: %v", f.src, uerr)
		}
		return err
	}
	f.persisted = true
	return nil
}

// Unpersist releases the frame's persisted partitions.
func (f *Frame) Unpersist(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.persisted {
		return nil
	}
	f.persisted = false
	return f.exec.Unpersist(ctx, f.src)
}

// Persisted tells whether the frame is persisted.
func (f *Frame) Persisted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.persisted
}

// Eval evaluates an aggregate over the frame and returns the merged
// partial.
func (f *Frame) Eval(ctx context.Context, agg Aggregate) (Partial, error) {
	if err := agg.Check(f.Schema()); err != nil {
		return Partial{}, err
	}
	f.mu.RLock()
	partials, err := f.exec.Aggregate(ctx, f.src, f.persisted, agg)
	f.mu.RUnlock()
	if err != nil {
		return Partial{}, err
	}
	if agg.Op == OpGroupBySum {
		groups, err := mergeGroups(ctx, partials)
		if err != nil {
			return Partial{}, err
		}
		var p Partial
		for _, q := range partials {
			q.Groups = nil
			p.Merge(q)
		}
		p.Groups = groups
		return p, nil
	}
	var p Partial
	for _, q := range partials {
		p.Merge(q)
	}
	return p, nil
}

// Count returns the number of rows in the frame.
func (f *Frame) Count(ctx context.Context) (int64, error) {
	p, err := f.Eval(ctx, Aggregate{Op: OpCount})
	return p.Rows, err
}

// Mean returns the mean of the non-null values of the named numeric
// column. It is an errors.Invalid error if the column has no non-null
// values.
func (f *Frame) Mean(ctx context.Context, column string) (float64, error) {
	p, err := f.Eval(ctx, Aggregate{Op: OpMean, Column: column})
	if err != nil {
		return 0, err
	}
	if p.Count == 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("mean(%s): no values", column))
	}
	return p.Sum / float64(p.Count), nil
}

// GroupBySum returns, for each distinct value of the key column, the
// sum of the value column over the rows with that key.
func (f *Frame) GroupBySum(ctx context.Context, key, value string) (map[string]float64, error) {
	p, err := f.Eval(ctx, Aggregate{Op: OpGroupBySum, Key: key, Value: value})
	if err != nil {
		return nil, err
	}
	return p.Groups, nil
}
