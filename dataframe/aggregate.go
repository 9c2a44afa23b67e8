// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/math"
	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

// Op is the kind of an aggregate.
type Op int

const (
	// OpCount counts rows.
	OpCount Op = iota
	// OpMean computes the mean of a numeric column.
	OpMean
	// OpGroupBySum sums a numeric column for each distinct key.
	OpGroupBySum
)

func (op Op) String() string {
	switch op {
	case OpCount:
		return "count"
	case OpMean:
		return "mean"
	case OpGroupBySum:
		return "groupby-sum"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// An Aggregate describes an aggregate computation over every row of a
// frame. Aggregates are evaluated per partition, producing Partials,
// which are then merged.
type Aggregate struct {
	Op Op
	// Column is the aggregated column of OpMean.
	Column string
	// Key and Value are the grouping and summed columns of
	// OpGroupBySum.
	Key, Value string
}

func (a Aggregate) String() string {
	switch a.Op {
	case OpMean:
		return fmt.Sprintf("mean(%s)", a.Column)
	case OpGroupBySum:
		return fmt.Sprintf("groupby-sum(%s, %s)", a.Key, a.Value)
	}
	return a.Op.String()
}

// Check verifies that the aggregate can be evaluated over frames with
// the provided schema.
func (a Aggregate) Check(schema Schema) error {
	switch a.Op {
	case OpCount:
		return nil
	case OpMean:
		_, err := schema.Lookup(a.Column, true)
		return err
	case OpGroupBySum:
		if _, err := schema.Lookup(a.Key, false); err != nil {
			return err
		}
		_, err := schema.Lookup(a.Value, true)
		return err
	}
	return errors.E(errors.Invalid, fmt.Sprintf("unknown aggregate %s", a.Op))
}

// A Partial is the partial result of an aggregate over a subset of a
// frame's rows.
type Partial struct {
	// Rows is the number of rows visited.
	Rows int64
	// Sum and Count are the sum and number of the non-null values of
	// the aggregated column.
	Sum   float64
	Count int64
	// Groups holds the per-key sums of a group-by aggregate.
	Groups map[string]float64
}

// Merge merges q into p.
func (p *Partial) Merge(q Partial) {
	p.Rows += q.Rows
	p.Sum += q.Sum
	p.Count += q.Count
	if len(q.Groups) == 0 {
		return
	}
	if p.Groups == nil {
		p.Groups = make(map[string]float64, len(q.Groups))
	}
	for k, v := range q.Groups {
		p.Groups[k] += v
	}
}

// Eval computes the partial aggregate of a set of records with the
// provided schema.
func (a Aggregate) Eval(schema Schema, records []arrow.Record) (Partial, error) {
	var p Partial
	for _, rec := range records {
		p.Rows += rec.NumRows()
	}
	switch a.Op {
	case OpCount:
	case OpMean:
		col, err := schema.Lookup(a.Column, true)
		if err != nil {
			return p, err
		}
		for _, rec := range records {
			sum, n := sumColumn(rec.Column(col))
			p.Sum += sum
			p.Count += n
		}
	case OpGroupBySum:
		key, err := schema.Lookup(a.Key, false)
		if err != nil {
			return p, err
		}
		value, err := schema.Lookup(a.Value, true)
		if err != nil {
			return p, err
		}
		p.Groups = make(map[string]float64)
		for _, rec := range records {
			groupSum(p.Groups, rec.Column(key), rec.Column(value))
		}
	default:
		return p, errors.E(errors.Invalid, fmt.Sprintf("unknown aggregate %s", a.Op))
	}
	return p, nil
}

// sumColumn returns the sum and count of the non-null values of a
// numeric column.
func sumColumn(col arrow.Array) (float64, int64) {
	switch arr := col.(type) {
	case *array.Float64:
		if arr.NullN() == 0 {
			return math.Float64.Sum(arr), int64(arr.Len())
		}
		var (
			sum float64
			n   int64
		)
		for i := 0; i < arr.Len(); i++ {
			if arr.IsValid(i) {
				sum += arr.Value(i)
				n++
			}
		}
		return sum, n
	case *array.Int64:
		if arr.NullN() == 0 {
			return float64(math.Int64.Sum(arr)), int64(arr.Len())
		}
		var (
			sum int64
			n   int64
		)
		for i := 0; i < arr.Len(); i++ {
			if arr.IsValid(i) {
				sum += arr.Value(i)
				n++
			}
		}
		return float64(sum), n
	}
	panic(fmt.Sprintf("dataframe: non-numeric column type %s", col.DataType()))
}

// groupSum adds each non-null value to its key's sum. Rows with a null
// key or value are skipped.
func groupSum(groups map[string]float64, keys, values arrow.Array) {
	for i := 0; i < keys.Len(); i++ {
		if keys.IsNull(i) || values.IsNull(i) {
			continue
		}
		var v float64
		switch arr := values.(type) {
		case *array.Float64:
			v = arr.Value(i)
		case *array.Int64:
			v = float64(arr.Value(i))
		default:
			panic(fmt.Sprintf("dataframe: non-numeric column type %s", values.DataType()))
		}
		groups[keyString(keys, i)] += v
	}
}

func keyString(keys arrow.Array, i int) string {
	switch arr := keys.(type) {
	case *array.String:
		return arr.Value(i)
	case *array.Int64:
		return strconv.FormatInt(arr.Value(i), 10)
	case *array.Float64:
		return strconv.FormatFloat(arr.Value(i), 'g', -1, 64)
	}
	return keys.ValueStr(i)
}

const hashSeed = 0x9acb0442

// mergeGroups merges the groups of a set of partials. Keys are sharded
// into buckets by their murmur3 hash; buckets are merged in parallel
// and then combined.
func mergeGroups(ctx context.Context, partials []Partial) (map[string]float64, error) {
	nbucket := runtime.GOMAXPROCS(0)
	if nbucket > len(partials) {
		nbucket = len(partials)
	}
	if nbucket <= 1 {
		var p Partial
		for _, q := range partials {
			p.Merge(q)
		}
		if p.Groups == nil {
			p.Groups = make(map[string]float64)
		}
		return p.Groups, nil
	}
	// shards[i][b] holds the keys of partial i that hash to bucket b.
	shards := make([][]map[string]float64, len(partials))
	g, gctx := errgroup.WithContext(ctx)
	for i := range partials {
		i := i
		g.Go(func() error {
			shards[i] = make([]map[string]float64, nbucket)
			for b := range shards[i] {
				shards[i][b] = make(map[string]float64)
			}
			for k, v := range partials[i].Groups {
				b := murmur3.Sum32WithSeed([]byte(k), hashSeed) % uint32(nbucket)
				shards[i][b][k] += v
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	buckets := make([]map[string]float64, nbucket)
	g, gctx = errgroup.WithContext(ctx)
	for b := range buckets {
		b := b
		g.Go(func() error {
			m := make(map[string]float64)
			for i := range shards {
				for k, v := range shards[i][b] {
					m[k] += v
				}
			}
			buckets[b] = m
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var n int
	for _, m := range buckets {
		n += len(m)
	}
	groups := make(map[string]float64, n)
	for _, m := range buckets {
		// Buckets are disjoint.
		for k, v := range m {
			groups[k] = v
		}
	}
	return groups, nil
}
