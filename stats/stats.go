// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats counts the work performed by dataframe executors.
// Counters are kept per process; the snapshots of several processes,
// for example bigmachine workers, are summed by the driver.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Names of the counters maintained by executors.
const (
	// PartitionsRead counts partitions read from files.
	PartitionsRead = "partitions_read"
	// BytesRead counts bytes of CSV read from files.
	BytesRead = "bytes_read"
	// RowsRead counts rows parsed from files.
	RowsRead = "rows_read"
	// PartitionsPersisted counts partitions placed in memory.
	PartitionsPersisted = "partitions_persisted"
	// PartitionsAggregated counts per-partition aggregate evaluations.
	PartitionsAggregated = "partitions_aggregated"
)

// Values is a snapshot of a set of counters.
type Values map[string]int64

// Add adds each of w's counters to v.
func (v Values) Add(w Values) {
	for k, n := range w {
		v[k] += n
	}
}

// Sub returns the counters of v less those of w; counters that are
// unchanged are omitted.
func (v Values) Sub(w Values) Values {
	d := make(Values)
	for k, n := range v {
		if n -= w[k]; n != 0 {
			d[k] = n
		}
	}
	return d
}

// String returns an abbreviated string with the values in this
// snapshot sorted by key.
func (v Values) String() string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of counters keyed by name. A nil *Map discards all
// updates.
type Map struct {
	mu       sync.Mutex
	counters map[string]*int64
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return &Map{counters: make(map[string]*int64)}
}

// Add adds delta to the named counter, creating it if necessary.
func (m *Map) Add(name string, delta int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	p := m.counters[name]
	if p == nil {
		p = new(int64)
		m.counters[name] = p
	}
	m.mu.Unlock()
	atomic.AddInt64(p, delta)
}

// Snapshot returns the current values of the map's counters.
func (m *Map) Snapshot() Values {
	v := make(Values)
	if m == nil {
		return v
	}
	m.mu.Lock()
	for k, p := range m.counters {
		v[k] = atomic.LoadInt64(p)
	}
	m.mu.Unlock()
	return v
}
