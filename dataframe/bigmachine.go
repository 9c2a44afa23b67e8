// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"runtime"
	"sync"

	"github.com/MrPowers/coiled/stats"
	"github.com/apache/arrow/go/v15/arrow"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigmachine"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(&worker{})
}

// BigmachineStatusGroup is the name of the status group used to
// report machine status.
const BigmachineStatusGroup = "bigmachine"

// A BigmachineOption configures a bigmachine executor.
type BigmachineOption func(*bigmachineExecutor)

// Status publishes machine status to the provided status object.
func Status(s *status.Status) BigmachineOption {
	return func(b *bigmachineExecutor) {
		if s != nil {
			b.status = s.Group(BigmachineStatusGroup)
		}
	}
}

// Params adds bigmachine parameters (for example, environment
// variables) to the started machines.
func Params(params ...bigmachine.Param) BigmachineOption {
	return func(b *bigmachineExecutor) {
		b.params = append(b.params, params...)
	}
}

// bigmachineExecutor distributes partitions over a fixed set of
// bigmachine machines. Partition i is owned by machine i%n: it is
// persisted on, and aggregated by, that machine.
type bigmachineExecutor struct {
	system   bigmachine.System
	b        *bigmachine.B
	status   *status.Group
	params   []bigmachine.Param
	machines []*bigmachine.Machine
}

// Bigmachine starts nmachine machines on the provided bigmachine
// system and returns an executor that evaluates partitions on them.
// Bigmachine blocks until the machines are running; machines that
// fail to start are logged and dropped. It is an error if no machine
// starts.
//
// Bigmachine calls bigmachine.Start, which never returns in worker
// processes; it should thus be called early in a program's main.
func Bigmachine(ctx context.Context, system bigmachine.System, nmachine int, opts ...BigmachineOption) (Executor, error) {
	if nmachine <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("dataframe.Bigmachine: invalid machine count %d", nmachine))
	}
	b := &bigmachineExecutor{system: system}
	for _, opt := range opts {
		opt(b)
	}
	b.b = bigmachine.Start(system)
	b.machines = b.startMachines(ctx, nmachine)
	if len(b.machines) == 0 {
		b.b.Shutdown()
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("dataframe.Bigmachine: no machines started on %s", system.Name()))
	}
	return b, nil
}

func (b *bigmachineExecutor) startMachines(ctx context.Context, n int) []*bigmachine.Machine {
	params := append([]bigmachine.Param{bigmachine.Services{"Worker": &worker{}}}, b.params...)
	machines, err := b.b.Start(ctx, n, params...)
	if err != nil {
		log.Error.Printf("error starting machines: %v", err)
		return nil
	}
	var wg sync.WaitGroup
	started := make([]*bigmachine.Machine, len(machines))
	for i := range machines {
		i, m := i, machines[i]
		var task *status.Task
		if b.status != nil {
			task = b.status.Start()
			task.Print("waiting for machine to boot")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				log.Printf("machine %s failed to start: %v", m.Addr, err)
				if task != nil {
					task.Printf("failed to start: %v", err)
					task.Done()
				}
				return
			}
			if task != nil {
				task.Title(m.Addr)
				task.Print("running")
			}
			log.Printf("machine %v is ready", m.Addr)
			started[i] = m
		}()
	}
	wg.Wait()
	n = 0
	for _, m := range started {
		if m != nil {
			started[n] = m
			n++
		}
	}
	return started[:n]
}

func (b *bigmachineExecutor) Name() string {
	return fmt.Sprintf("bigmachine(%s, machines=%d)", b.system.Name(), len(b.machines))
}

// shard returns, for each machine, the sub-source of the partitions it
// owns. Machines that own no partitions are assigned an empty source.
func (b *bigmachineExecutor) shard(src Source) []Source {
	shards := make([]Source, len(b.machines))
	for i := range shards {
		shards[i] = Source{ID: src.ID, Format: src.Format}
	}
	for _, part := range src.Partitions {
		m := part.Index % len(b.machines)
		shards[m].Partitions = append(shards[m].Partitions, part)
	}
	return shards
}

// each calls fn concurrently for each machine that owns a nonempty
// shard of src.
func (b *bigmachineExecutor) each(ctx context.Context, src Source, fn func(ctx context.Context, m *bigmachine.Machine, shard Source) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range b.shard(src) {
		if len(shard.Partitions) == 0 {
			continue
		}
		m, shard := b.machines[i], shard
		g.Go(func() error {
			if err := fn(ctx, m, shard); err != nil {
				return errors.E(fmt.Sprintf("machine %s", m.Addr), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *bigmachineExecutor) Persist(ctx context.Context, src Source) error {
	return b.each(ctx, src, func(ctx context.Context, m *bigmachine.Machine, shard Source) error {
		return m.RetryCall(ctx, "Worker.Persist", shard, nil)
	})
}

func (b *bigmachineExecutor) Unpersist(ctx context.Context, src Source) error {
	return b.each(ctx, src, func(ctx context.Context, m *bigmachine.Machine, shard Source) error {
		return m.RetryCall(ctx, "Worker.Unpersist", shard.ID, nil)
	})
}

func (b *bigmachineExecutor) Aggregate(ctx context.Context, src Source, persisted bool, agg Aggregate) ([]Partial, error) {
	var (
		mu       sync.Mutex
		partials = make([]Partial, len(src.Partitions))
	)
	err := b.each(ctx, src, func(ctx context.Context, m *bigmachine.Machine, shard Source) error {
		req := aggregateRequest{Source: shard, Persisted: persisted, Aggregate: agg}
		var reply []Partial
		if err := m.RetryCall(ctx, "Worker.Aggregate", req, &reply); err != nil {
			return err
		}
		if got, want := len(reply), len(shard.Partitions); got != want {
			return errors.E(errors.Invalid, fmt.Sprintf("worker returned %d partials, want %d", got, want))
		}
		mu.Lock()
		for i, part := range shard.Partitions {
			partials[part.Index] = reply[i]
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return partials, nil
}

// Stats returns the sum of the counters of every machine.
func (b *bigmachineExecutor) Stats(ctx context.Context) (stats.Values, error) {
	var (
		mu    sync.Mutex
		total = make(stats.Values)
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range b.machines {
		m := m
		g.Go(func() error {
			var vals stats.Values
			if err := m.RetryCall(ctx, "Worker.Stats", struct{}{}, &vals); err != nil {
				return errors.E(fmt.Sprintf("machine %s", m.Addr), err)
			}
			mu.Lock()
			total.Add(vals)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return total, nil
}

// HandleDebug registers bigmachine's debug handlers, which aggregate
// profiles across machines, on the provided mux.
func (b *bigmachineExecutor) HandleDebug(handler *http.ServeMux) {
	b.b.HandleDebug(handler)
}

func (b *bigmachineExecutor) Close() error {
	b.b.Shutdown()
	return nil
}

type aggregateRequest struct {
	Source    Source
	Persisted bool
	Aggregate Aggregate
}

// A worker is the bigmachine service that persists partitions and
// evaluates aggregates over them.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	procs int
	stats *stats.Map

	mu    sync.Mutex
	cache map[uint64]map[int][]arrow.Record
}

func (w *worker) Init(b *bigmachine.B) error {
	w.cache = make(map[uint64]map[int][]arrow.Record)
	w.stats = stats.NewMap()
	w.procs = b.System().Maxprocs()
	if w.procs == 0 {
		w.procs = runtime.GOMAXPROCS(0)
	}
	return nil
}

// Persist reads the partitions of the source into memory.
func (w *worker) Persist(ctx context.Context, src Source, _ *struct{}) error {
	loaded := make([][]arrow.Record, len(src.Partitions))
	err := traverse.Limit(w.procs).Each(len(src.Partitions), func(i int) error {
		var err error
		loaded[i], err = readPartition(ctx, src.Format, src.Partitions[i], w.stats)
		return err
	})
	if err != nil {
		for _, records := range loaded {
			release(records)
		}
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	parts := w.cache[src.ID]
	if parts == nil {
		parts = make(map[int][]arrow.Record)
		w.cache[src.ID] = parts
	}
	for i, part := range src.Partitions {
		release(parts[part.Index])
		parts[part.Index] = loaded[i]
	}
	w.stats.Add(stats.PartitionsPersisted, int64(len(src.Partitions)))
	log.Debug.Printf("worker: persisted %d partitions of %s", len(src.Partitions), src)
	return nil
}

// Unpersist releases the persisted partitions of the frame with the
// provided ID.
func (w *worker) Unpersist(ctx context.Context, id uint64, _ *struct{}) error {
	w.mu.Lock()
	parts := w.cache[id]
	delete(w.cache, id)
	w.mu.Unlock()
	for _, records := range parts {
		release(records)
	}
	return nil
}

// Aggregate evaluates an aggregate over each partition of the request's
// source, in order.
func (w *worker) Aggregate(ctx context.Context, req aggregateRequest, reply *[]Partial) error {
	src := req.Source
	var persisted [][]arrow.Record
	if req.Persisted {
		persisted = make([][]arrow.Record, len(src.Partitions))
		w.mu.Lock()
		for i, part := range src.Partitions {
			records, ok := w.cache[src.ID][part.Index]
			if !ok {
				w.mu.Unlock()
				return errors.E(errors.NotExist, fmt.Sprintf("partition %d of %s is not persisted", part.Index, src))
			}
			persisted[i] = records
		}
		w.mu.Unlock()
	}
	partials := make([]Partial, len(src.Partitions))
	err := traverse.Limit(w.procs).Each(len(src.Partitions), func(i int) error {
		w.stats.Add(stats.PartitionsAggregated, 1)
		var err error
		if req.Persisted {
			partials[i], err = req.Aggregate.Eval(src.Format.Schema, persisted[i])
			return err
		}
		part := src.Partitions[i]
		records, err := readPartition(ctx, src.Format, part, w.stats)
		if err != nil {
			return err
		}
		defer release(records)
		partials[i], err = req.Aggregate.Eval(src.Format.Schema, records)
		return err
	})
	if err != nil {
		return err
	}
	*reply = partials
	return nil
}

// Stats returns a snapshot of the worker's counters.
func (w *worker) Stats(ctx context.Context, _ struct{}, values *stats.Values) error {
	*values = w.stats.Snapshot()
	return nil
}
