// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"fmt"

	"github.com/MrPowers/coiled/stats"
)

// A Source describes the partitions of a frame, as they are shipped
// to an executor.
type Source struct {
	// ID uniquely identifies the frame within the driver process.
	ID         uint64
	Format     Format
	Partitions []Partition
}

func (s Source) String() string {
	return fmt.Sprintf("frame %d (%d partitions)", s.ID, len(s.Partitions))
}

// An Executor evaluates aggregates over the partitions of a source.
// Executors hold the persisted partitions of frames. Executors are
// safe for concurrent use; operations on distinct sources may run
// concurrently.
type Executor interface {
	// Name returns a short description of the executor.
	Name() string

	// Persist reads every partition of the source into memory, where
	// it is retained until Unpersist is called.
	Persist(ctx context.Context, src Source) error

	// Unpersist releases the memory held by the source's persisted
	// partitions. Unpersisting an unpersisted source is a no-op.
	Unpersist(ctx context.Context, src Source) error

	// Aggregate evaluates agg over each partition of the source and
	// returns the partials indexed by partition. If persisted is true,
	// the partitions are read from memory; it is an errors.NotExist
	// error if a partition was not persisted. Otherwise partitions
	// are read from their files.
	Aggregate(ctx context.Context, src Source, persisted bool, agg Aggregate) ([]Partial, error)

	// Stats returns the executor's counters, summed over all of its
	// processes.
	Stats(ctx context.Context) (stats.Values, error)

	// Close releases the resources held by the executor.
	Close() error
}
