// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"context"
	"testing"

	"github.com/MrPowers/coiled"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func TestComputations(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	var (
		ctx     = context.Background()
		rows    = fuzzRows(500)
		paths   = writeFiles(t, dir, rows, 1)
		want    = expectedOf(rows)
		x       = Local(2)
		log     = coiled.NewLog()
		harness = coiled.Harness{Notifier: coiled.NopNotifier{}}
	)
	defer x.Close()
	f, err := Open(ctx, x, testSchema, 4, paths...)
	assert.NoError(t, err)
	assert.NoError(t, f.Persist(ctx))

	for _, c := range []struct {
		op    string
		label string
		opts  coiled.Options
	}{
		{"count", "count_persisted", nil},
		{"mean", "mean_persisted", coiled.Options{"column": "fare"}},
		{"groupby-sum", "groupby-sum_persisted", coiled.Options{"key": "vendor", "value": "fare"}},
	} {
		comp, err := Computation(c.op)
		assert.NoError(t, err)
		_, err = harness.RunAndRecord(ctx, comp, f, log, c.label, c.opts)
		assert.NoError(t, err)
	}
	assert.EQ(t, log.Labels(), []string{"count_persisted", "mean_persisted", "groupby-sum_persisted"})

	n, err := CountFunc.Invoke(ctx, f, nil)
	assert.NoError(t, err)
	if got, want := n.(int64), want.count; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	mean, err := MeanFunc.Invoke(ctx, f, coiled.Options{"column": "fare"})
	assert.NoError(t, err)
	if got, want := mean.(float64), want.fareMean; !approxEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComputationErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Computation("median"); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := CountFunc.Invoke(ctx, "not a frame", nil); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	f := &Frame{src: Source{Format: CSV(testSchema)}, exec: Local(1)}
	for _, opts := range []coiled.Options{
		nil,
		{"column": 3},
		{"column": ""},
	} {
		if _, err := MeanFunc.Invoke(ctx, f, opts); !errors.Is(errors.Invalid, err) {
			t.Errorf("%v: got %v, want invalid", opts, err)
		}
	}
	if _, err := GroupBySumFunc.Invoke(ctx, f, coiled.Options{"key": "vendor"}); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}

	// A failing computation leaves the log unchanged.
	log := coiled.NewLog()
	h := coiled.Harness{Notifier: coiled.NopNotifier{}}
	if _, err := h.RunAndRecord(ctx, MeanFunc, f, log, "mean", coiled.Options{"column": "missing"}); err == nil {
		t.Error("expected error")
	}
	if got, want := log.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
