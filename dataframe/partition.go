// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"fmt"
	"sort"

	"github.com/MrPowers/coiled/internal/defaultsize"
	"github.com/MrPowers/coiled/internal/linerange"
	"github.com/MrPowers/coiled/stats"
	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/csv"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/traverse"
)

// A Partition is a contiguous byte range of a single CSV file. Lines
// are assigned to the partition in which they start, so that the
// partitions of a file together contain each of its lines exactly once.
type Partition struct {
	// Index is the partition's position in its frame.
	Index int
	// Path is the file containing the partition.
	Path string
	// Start and End delimit the byte range [Start, End) of the file.
	Start, End int64
}

func (p Partition) String() string {
	return fmt.Sprintf("%s[%d:%d]", p.Path, p.Start, p.End)
}

// Split divides files of the provided sizes into npart partitions,
// apportioned by size (largest remainder first). Every file is
// assigned at least one partition, taken from the file with the most
// partitions when it can spare one; thus Split returns
// max(npart, len(paths)) partitions. Partitions never straddle files.
// The returned partitions are ordered by file, then by offset.
func Split(paths []string, sizes []int64, npart int) []Partition {
	if len(paths) != len(sizes) {
		panic("dataframe.Split: mismatched paths and sizes")
	}
	counts := apportion(sizes, npart)
	var parts []Partition
	for i, path := range paths {
		n := int64(counts[i])
		for j := int64(0); j < n; j++ {
			parts = append(parts, Partition{
				Index: len(parts),
				Path:  path,
				Start: sizes[i] * j / n,
				End:   sizes[i] * (j + 1) / n,
			})
		}
	}
	return parts
}

// apportion returns the number of partitions assigned to each file.
func apportion(sizes []int64, npart int) []int {
	counts := make([]int, len(sizes))
	if len(counts) == 0 {
		return counts
	}
	var total int64
	for _, size := range sizes {
		total += size
	}
	if total == 0 {
		for i := 0; i < npart; i++ {
			counts[i%len(counts)]++
		}
	} else {
		type remainder struct {
			index int
			frac  float64
		}
		var (
			rems     = make([]remainder, len(sizes))
			assigned int
		)
		for i, size := range sizes {
			share := float64(npart) * float64(size) / float64(total)
			whole := int(share)
			counts[i] = whole
			assigned += whole
			rems[i] = remainder{i, share - float64(whole)}
		}
		sort.SliceStable(rems, func(i, j int) bool {
			return rems[i].frac > rems[j].frac
		})
		for i := 0; assigned < npart; i++ {
			counts[rems[i%len(rems)].index]++
			assigned++
		}
	}
	for i := range counts {
		if counts[i] > 0 {
			continue
		}
		most := 0
		for j := range counts {
			if counts[j] > counts[most] {
				most = j
			}
		}
		if counts[most] > 1 {
			counts[most]--
		}
		counts[i] = 1
	}
	return counts
}

// plan stats each path and splits the files into npart partitions.
func plan(ctx context.Context, npart int, paths []string) ([]Partition, error) {
	sizes := make([]int64, len(paths))
	err := traverse.Each(len(paths), func(i int) error {
		info, err := file.Stat(ctx, paths[i])
		if err != nil {
			return err
		}
		sizes[i] = info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Split(paths, sizes, npart), nil
}

// ReadPartition reads and parses the lines of a partition into arrow
// records. The caller owns the returned records and must release them.
func ReadPartition(ctx context.Context, format Format, part Partition) ([]arrow.Record, error) {
	return readPartition(ctx, format, part, nil)
}

// readPartition implements ReadPartition, adding the work done to st,
// which may be nil.
func readPartition(ctx context.Context, format Format, part Partition, st *stats.Map) (records []arrow.Record, err error) {
	f, err := file.Open(ctx, part.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()
	lines, err := linerange.NewReader(f.Reader(ctx), part.Start, part.End, defaultsize.Buffer)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("partition %s", part), err)
	}
	if format.Header && part.Start == 0 {
		if err := lines.Discard(1); err != nil {
			return nil, errors.E(fmt.Sprintf("partition %s", part), err)
		}
	}
	r := csv.NewReader(lines, format.Schema.Arrow(),
		csv.WithChunk(defaultsize.Chunk),
		csv.WithComma(format.comma()),
		csv.WithNullReader(false, "", "NA", "NULL", "null"),
	)
	defer r.Release()
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if err := r.Err(); err != nil {
		release(records)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("partition %s", part), err)
	}
	var rows int64
	for _, rec := range records {
		rows += rec.NumRows()
	}
	st.Add(stats.PartitionsRead, 1)
	st.Add(stats.BytesRead, lines.BytesRead())
	st.Add(stats.RowsRead, rows)
	return records, nil
}

func release(records []arrow.Record) {
	for _, rec := range records {
		rec.Release()
	}
}
