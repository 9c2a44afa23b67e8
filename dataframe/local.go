// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/MrPowers/coiled/stats"
	"github.com/apache/arrow/go/v15/arrow"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"golang.org/x/sync/errgroup"
)

// localExecutor evaluates partitions in-process, in separate
// goroutines. At most p partitions are processed at a time.
type localExecutor struct {
	p       int
	limiter *limiter.Limiter
	stats   *stats.Map

	mu    sync.Mutex
	cache map[uint64][][]arrow.Record
}

// Local returns an executor that processes partitions in-process with
// the given parallelism. If p is zero, GOMAXPROCS is used.
func Local(p int) Executor {
	if p <= 0 {
		p = runtime.GOMAXPROCS(0)
	}
	l := &localExecutor{
		p:       p,
		limiter: limiter.New(),
		stats:   stats.NewMap(),
		cache:   make(map[uint64][][]arrow.Record),
	}
	l.limiter.Release(p)
	return l
}

func (l *localExecutor) Name() string {
	return fmt.Sprintf("local(p=%d)", l.p)
}

// each calls fn for each partition of src, at most p at a time.
func (l *localExecutor) each(ctx context.Context, src Source, fn func(ctx context.Context, part Partition) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, part := range src.Partitions {
		part := part
		g.Go(func() error {
			if err := l.limiter.Acquire(ctx, 1); err != nil {
				return err
			}
			defer l.limiter.Release(1)
			return fn(ctx, part)
		})
	}
	return g.Wait()
}

func (l *localExecutor) Persist(ctx context.Context, src Source) error {
	l.mu.Lock()
	if _, ok := l.cache[src.ID]; ok {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	loaded := make([][]arrow.Record, len(src.Partitions))
	err := l.each(ctx, src, func(ctx context.Context, part Partition) error {
		records, err := readPartition(ctx, src.Format, part, l.stats)
		loaded[part.Index] = records
		return err
	})
	if err != nil {
		for _, records := range loaded {
			release(records)
		}
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[src.ID]; ok {
		for _, records := range loaded {
			release(records)
		}
		return nil
	}
	l.cache[src.ID] = loaded
	l.stats.Add(stats.PartitionsPersisted, int64(len(loaded)))
	return nil
}

func (l *localExecutor) Unpersist(ctx context.Context, src Source) error {
	l.mu.Lock()
	loaded := l.cache[src.ID]
	delete(l.cache, src.ID)
	l.mu.Unlock()
	for _, records := range loaded {
		release(records)
	}
	return nil
}

func (l *localExecutor) Aggregate(ctx context.Context, src Source, persisted bool, agg Aggregate) ([]Partial, error) {
	var loaded [][]arrow.Record
	if persisted {
		l.mu.Lock()
		var ok bool
		loaded, ok = l.cache[src.ID]
		l.mu.Unlock()
		if !ok {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("%s is not persisted", src))
		}
	}
	partials := make([]Partial, len(src.Partitions))
	err := l.each(ctx, src, func(ctx context.Context, part Partition) error {
		l.stats.Add(stats.PartitionsAggregated, 1)
		var err error
		if persisted {
			partials[part.Index], err = agg.Eval(src.Format.Schema, loaded[part.Index])
			return err
		}
		records, err := readPartition(ctx, src.Format, part, l.stats)
		if err != nil {
			return err
		}
		defer release(records)
		partials[part.Index], err = agg.Eval(src.Format.Schema, records)
		return err
	})
	if err != nil {
		return nil, err
	}
	return partials, nil
}

func (l *localExecutor) Stats(context.Context) (stats.Values, error) {
	return l.stats.Snapshot(), nil
}

func (l *localExecutor) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, loaded := range l.cache {
		for _, records := range loaded {
			release(records)
		}
		delete(l.cache, id)
	}
	return nil
}
