// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"fmt"

	"github.com/MrPowers/coiled"
	"github.com/grailbio/base/errors"
)

// Computations over frames, for use with the coiled harness. The
// dataset passed to each must be a *Frame.
var (
	// CountFunc counts the rows of the frame.
	CountFunc = coiled.Func(func(ctx context.Context, dataset interface{}, _ coiled.Options) (interface{}, error) {
		f, err := frameOf(dataset)
		if err != nil {
			return nil, err
		}
		return f.Count(ctx)
	})

	// MeanFunc computes the mean of the column named by the option
	// "column".
	MeanFunc = coiled.Func(func(ctx context.Context, dataset interface{}, opts coiled.Options) (interface{}, error) {
		f, err := frameOf(dataset)
		if err != nil {
			return nil, err
		}
		column, err := stringOption(opts, "column")
		if err != nil {
			return nil, err
		}
		return f.Mean(ctx, column)
	})

	// GroupBySumFunc sums the column named by the option "value" for
	// each distinct value of the column named by the option "key".
	GroupBySumFunc = coiled.Func(func(ctx context.Context, dataset interface{}, opts coiled.Options) (interface{}, error) {
		f, err := frameOf(dataset)
		if err != nil {
			return nil, err
		}
		key, err := stringOption(opts, "key")
		if err != nil {
			return nil, err
		}
		value, err := stringOption(opts, "value")
		if err != nil {
			return nil, err
		}
		return f.GroupBySum(ctx, key, value)
	})
)

// Computation returns the computation for the named operation: one of
// "count", "mean", or "groupby-sum".
func Computation(op string) (coiled.Computation, error) {
	switch op {
	case OpCount.String():
		return CountFunc, nil
	case OpMean.String():
		return MeanFunc, nil
	case OpGroupBySum.String():
		return GroupBySumFunc, nil
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown operation %q", op))
}

func frameOf(dataset interface{}) (*Frame, error) {
	f, ok := dataset.(*Frame)
	if !ok || f == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("dataset %T is not a *dataframe.Frame", dataset))
	}
	return f, nil
}

func stringOption(opts coiled.Options, name string) (string, error) {
	v, ok := opts[name]
	if !ok {
		return "", errors.E(errors.Invalid, fmt.Sprintf("missing option %q", name))
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errors.E(errors.Invalid, fmt.Sprintf("option %q: expected a column name, got %v", name, v))
	}
	return s, nil
}
