// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dataframe provides partitioned, CSV-backed dataframes and
// the aggregate computations (count, mean, group-by-sum) that are
// benchmarked by the coiled harness.
//
// A frame's files are split into byte-range partitions; each partition
// is parsed into arrow records by the executor that evaluates it.
// Executors run in-process (Local) or on a cluster of bigmachine
// workers (Bigmachine). Persisting a frame keeps its parsed partitions
// in executor memory, so that later aggregates skip file I/O and
// parsing.
package dataframe
