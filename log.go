// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coiled

import (
	"fmt"
	"sync"
	"time"
)

// A Record is a single labeled benchmark measurement.
type Record struct {
	// Label names the scenario that was measured. Labels need not be
	// unique.
	Label string
	// Duration is the elapsed time of the computation. It is never
	// negative.
	Duration time.Duration
}

// Seconds returns the record's duration in seconds.
func (r Record) Seconds() float64 {
	return r.Duration.Seconds()
}

// String returns a human readable rendering of the record.
func (r Record) String() string {
	return fmt.Sprintf("%s: %s", r.Label, r.Duration)
}

// A Log is an ordered, append-only sequence of benchmark records.
// Records appear in the order in which they were appended. The zero
// Log is empty and ready to use. A Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	records []Record
}

// NewLog returns a new, empty log.
func NewLog() *Log {
	return new(Log)
}

// Append appends a record with the provided label and duration. The
// label and duration are appended together, in a single critical
// section.
func (l *Log) Append(label string, d time.Duration) {
	l.mu.Lock()
	l.records = append(l.records, Record{Label: label, Duration: d})
	l.mu.Unlock()
}

// Len returns the number of records in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns a copy of the log's records, in append order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := make([]Record, len(l.records))
	copy(records, l.records)
	return records
}

// Labels returns the labels of the log's records, in append order.
func (l *Log) Labels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	labels := make([]string, len(l.records))
	for i, r := range l.records {
		labels[i] = r.Label
	}
	return labels
}

// Durations returns the durations of the log's records, in append
// order.
func (l *Log) Durations() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	durations := make([]time.Duration, len(l.records))
	for i, r := range l.records {
		durations[i] = r.Duration
	}
	return durations
}
