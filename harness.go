// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coiled

import (
	"context"
	"time"

	"github.com/grailbio/base/errors"
)

// Options are named parameters that the harness forwards, unmodified,
// to a computation.
type Options map[string]interface{}

// A Computation performs some work over a dataset handle. Invoke must
// block until the computation has completed (or failed), even if the
// work itself is carried out asynchronously or by remote workers.
// The dataset handle is opaque to the harness.
type Computation interface {
	Invoke(ctx context.Context, dataset interface{}, opts Options) (interface{}, error)
}

// Func is an adapter that allows ordinary functions to be used as
// computations.
type Func func(ctx context.Context, dataset interface{}, opts Options) (interface{}, error)

// Invoke implements Computation.
func (f Func) Invoke(ctx context.Context, dataset interface{}, opts Options) (interface{}, error) {
	return f(ctx, dataset, opts)
}

// Harness times computations and records their durations. A Harness
// is stateless between calls; the zero Harness notifies through
// LogNotifier.
type Harness struct {
	// Notifier receives a notification for each recorded benchmark.
	// If nil, LogNotifier is used.
	Notifier Notifier
}

var defaultHarness Harness

// RunAndRecord invokes the computation on the provided dataset with
// the provided options, measures its elapsed time, appends the pair
// (label, duration) to the log, notifies the harness's notifier, and
// returns the duration.
//
// If the computation fails, its error is returned as-is: no record is
// appended and no notification is made. RunAndRecord returns an
// errors.Invalid error, without invoking the computation, if label is
// empty or log is nil.
func (h *Harness) RunAndRecord(ctx context.Context, comp Computation, dataset interface{}, log *Log, label string, opts Options) (time.Duration, error) {
	if label == "" {
		return 0, errors.E(errors.Invalid, "coiled.RunAndRecord: empty label")
	}
	if log == nil {
		return 0, errors.E(errors.Invalid, "coiled.RunAndRecord: nil log")
	}
	d, err := timed(func() error {
		_, err := comp.Invoke(ctx, dataset, opts)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Append(label, d)
	h.notifier().Notify(label, d)
	return d, nil
}

// RunTimed invokes fn and returns its elapsed time. Nothing is
// recorded or notified. If fn fails, its error is returned as-is.
func (h *Harness) RunTimed(fn func() error) (time.Duration, error) {
	return timed(fn)
}

func (h *Harness) notifier() Notifier {
	if h.Notifier == nil {
		return LogNotifier{}
	}
	return h.Notifier
}

// RunAndRecord runs the computation with the default harness. See
// Harness.RunAndRecord.
func RunAndRecord(ctx context.Context, comp Computation, dataset interface{}, log *Log, label string, opts Options) (time.Duration, error) {
	return defaultHarness.RunAndRecord(ctx, comp, dataset, log, label, opts)
}

// RunTimed times fn with the default harness. See Harness.RunTimed.
func RunTimed(fn func() error) (time.Duration, error) {
	return defaultHarness.RunTimed(fn)
}

// timed measures fn using the monotonic clock reading carried by
// time.Time, so the result is unaffected by wall clock adjustments.
func timed(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		d = 0
	}
	return d, nil
}
