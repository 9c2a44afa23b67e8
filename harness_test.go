// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coiled

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

var lenFunc = Func(func(ctx context.Context, dataset interface{}, opts Options) (interface{}, error) {
	return len(dataset.([]int)), nil
})

func quietHarness() *Harness {
	return &Harness{Notifier: NopNotifier{}}
}

func TestRunAndRecord(t *testing.T) {
	var (
		ctx = context.Background()
		log = NewLog()
		h   = quietHarness()
	)
	d, err := h.RunAndRecord(ctx, lenFunc, []int{1, 2, 3}, log, "count", nil)
	assert.NoError(t, err)
	if d < 0 {
		t.Errorf("negative duration %v", d)
	}
	records := log.Records()
	if got, want := len(records), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	expect.EQ(t, records[0], Record{Label: "count", Duration: d})
}

func TestRunAndRecordOrder(t *testing.T) {
	var (
		ctx = context.Background()
		log = NewLog()
		h   = quietHarness()
	)
	slow := Func(func(context.Context, interface{}, Options) (interface{}, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	})
	d1, err := h.RunAndRecord(ctx, slow, nil, log, "a", nil)
	assert.NoError(t, err)
	d2, err := h.RunAndRecord(ctx, lenFunc, []int{}, log, "b", nil)
	assert.NoError(t, err)
	// "a" is the slower scenario, but order follows the calls.
	want := []Record{{"a", d1}, {"b", d2}}
	if got := log.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunAndRecordFailure(t *testing.T) {
	var (
		ctx    = context.Background()
		log    = NewLog()
		notes  bytes.Buffer
		h      = &Harness{Notifier: NewWriterNotifier(&notes)}
		failed = fmt.Errorf("worker lost")
	)
	_, err := h.RunAndRecord(ctx, lenFunc, []int{1}, log, "before", nil)
	assert.NoError(t, err)
	before := log.Records()
	notesBefore := notes.String()

	failing := Func(func(context.Context, interface{}, Options) (interface{}, error) {
		return nil, failed
	})
	d, err := h.RunAndRecord(ctx, failing, nil, log, "failing", nil)
	if err != failed {
		t.Fatalf("got %v, want %v", err, failed)
	}
	if got, want := d, time.Duration(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := log.Records(); !reflect.DeepEqual(got, before) {
		t.Errorf("got %v, want %v", got, before)
	}
	if got, want := notes.String(), notesBefore; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunAndRecordAppendPreserves(t *testing.T) {
	var (
		ctx = context.Background()
		log = NewLog()
		h   = quietHarness()
	)
	for i := 0; i < 3; i++ {
		_, err := h.RunAndRecord(ctx, lenFunc, []int{i}, log, fmt.Sprint("pre", i), nil)
		assert.NoError(t, err)
	}
	before := log.Records()
	_, err := h.RunAndRecord(ctx, lenFunc, []int{}, log, "fourth", nil)
	assert.NoError(t, err)
	after := log.Records()
	if got, want := len(after), 4; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !reflect.DeepEqual(after[:3], before) {
		t.Errorf("got %v, want %v", after[:3], before)
	}
	if got, want := after[3].Label, "fourth"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunAndRecordDuplicateLabels(t *testing.T) {
	var (
		ctx = context.Background()
		log = NewLog()
		h   = quietHarness()
	)
	for i := 0; i < 2; i++ {
		_, err := h.RunAndRecord(ctx, lenFunc, []int{}, log, "same", nil)
		assert.NoError(t, err)
	}
	assert.EQ(t, log.Labels(), []string{"same", "same"})
}

func TestRunAndRecordOptions(t *testing.T) {
	var (
		ctx  = context.Background()
		log  = NewLog()
		h    = quietHarness()
		opts = Options{"column": "fare", "n": 3}
		got  Options
		seen interface{}
	)
	comp := Func(func(ctx context.Context, dataset interface{}, opts Options) (interface{}, error) {
		got, seen = opts, dataset
		return nil, nil
	})
	dataset := &struct{ name string }{"taxi"}
	_, err := h.RunAndRecord(ctx, comp, dataset, log, "opts", opts)
	assert.NoError(t, err)
	if !reflect.DeepEqual(got, opts) {
		t.Errorf("got %v, want %v", got, opts)
	}
	if seen != dataset {
		t.Errorf("dataset handle was not forwarded")
	}
}

func TestRunAndRecordInvalid(t *testing.T) {
	var (
		ctx    = context.Background()
		log    = NewLog()
		h      = quietHarness()
		called bool
	)
	comp := Func(func(context.Context, interface{}, Options) (interface{}, error) {
		called = true
		return nil, nil
	})
	if _, err := h.RunAndRecord(ctx, comp, nil, log, "", nil); !errors.Is(errors.Invalid, err) {
		t.Errorf("empty label: got %v, want invalid", err)
	}
	if _, err := h.RunAndRecord(ctx, comp, nil, nil, "label", nil); !errors.Is(errors.Invalid, err) {
		t.Errorf("nil log: got %v, want invalid", err)
	}
	if called {
		t.Error("computation invoked for invalid call")
	}
	if got, want := log.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunAndRecordNotify(t *testing.T) {
	var (
		ctx   = context.Background()
		log   = NewLog()
		notes bytes.Buffer
		h     = &Harness{Notifier: NewWriterNotifier(&notes)}
	)
	d, err := h.RunAndRecord(ctx, lenFunc, []int{1}, log, "count_persisted", nil)
	assert.NoError(t, err)
	if got, want := notes.String(), NotificationLine("count_persisted", d)+"\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !strings.HasPrefix(notes.String(), "count_persisted took: ") {
		t.Errorf("unexpected notification %q", notes.String())
	}
}

func TestRunAndRecordConcurrent(t *testing.T) {
	const N = 64
	var (
		ctx = context.Background()
		log = NewLog()
		h   = quietHarness()
		wg  sync.WaitGroup
	)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.RunAndRecord(ctx, lenFunc, []int{i}, log, fmt.Sprint(i), nil); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if got, want := len(log.Labels()), N; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(log.Durations()), N; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	seen := make(map[string]bool)
	for _, label := range log.Labels() {
		seen[label] = true
	}
	if got, want := len(seen), N; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunTimed(t *testing.T) {
	log := NewLog()
	d, err := RunTimed(func() error { return nil })
	assert.NoError(t, err)
	if d < 0 {
		t.Errorf("negative duration %v", d)
	}
	if d > time.Second {
		t.Errorf("duration %v is not close to zero", d)
	}
	if got, want := log.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	failed := errors.E(errors.Fatal, "boom")
	_, err = RunTimed(func() error { return failed })
	if err != failed {
		t.Errorf("got %v, want %v", err, failed)
	}
}

func TestRunTimedMeasures(t *testing.T) {
	const sleep = 25 * time.Millisecond
	d, err := RunTimed(func() error {
		time.Sleep(sleep)
		return nil
	})
	assert.NoError(t, err)
	if d < sleep {
		t.Errorf("got %v, want at least %v", d, sleep)
	}
}

func TestZeroLog(t *testing.T) {
	var log Log
	log.Append("x", time.Second)
	assert.EQ(t, log.Labels(), []string{"x"})
	assert.EQ(t, log.Durations(), []time.Duration{time.Second})
	// Records returns a copy.
	records := log.Records()
	records[0].Label = "y"
	assert.EQ(t, log.Labels(), []string{"x"})
}
