// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package coiled implements a small timing harness used to benchmark
	aggregate computations over partitioned dataframes. Each benchmark
	scenario is a computation (count, mean, group-by-sum, ...) applied to
	an opaque dataset handle; the harness measures how long the
	computation takes and records the duration under a label in a
	caller-owned Log.

	The harness does not know how the computation is executed: it may run
	in-process, across goroutines, or across a cluster of bigmachine
	workers (see package github.com/MrPowers/coiled/dataframe). The only
	contract is that Invoke blocks until the computation has either
	completed or failed.

	A typical benchmark looks like this:

		var (
			log     = coiled.NewLog()
			harness coiled.Harness
		)
		d, err := harness.RunAndRecord(ctx, dataframe.CountFunc, frame, log, "count_persisted", nil)
		if err != nil {
			// The log is unchanged; the error is the computation's own.
			return err
		}

	Failed computations are never recorded: timing data for a failed run
	would be misleading, so the failure is returned to the caller as-is
	and the log is left exactly as it was before the call.

	Records are appended in call order and are never reordered or removed
	by the harness. Log is safe for concurrent use; label and duration
	are always appended together.
*/
package coiled
