// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bench runs matrices of dataframe benchmark scenarios through
// the coiled harness.
package bench

import (
	"context"
	"fmt"

	"github.com/MrPowers/coiled"
	"github.com/MrPowers/coiled/dataframe"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
)

// A Suite runs benchmark scenarios over a fixed set of CSV files.
type Suite struct {
	// Harness times and records each scenario. If nil, the default
	// harness is used.
	Harness *coiled.Harness
	// Executor evaluates the frames' partitions.
	Executor dataframe.Executor
	// Format is the format of the files.
	Format dataframe.Format
	// Paths are the files backing each frame.
	Paths []string
	// Options are passed to every computation.
	Options coiled.Options
	// KeepGoing causes a failed scenario to be logged and skipped;
	// otherwise the first failure aborts the run.
	KeepGoing bool
	// Status, if not nil, receives progress updates.
	Status *status.Group
}

type frameKey struct {
	partitions int
	persist    bool
}

// Run runs the provided scenarios in order, appending a record for
// each successful scenario to log. Consecutive scenarios with the same
// partition count and persistence share a frame, which is opened (and
// persisted, if required) once; a frame is reopened when its key
// recurs later in the sequence. Persisting is timed but not recorded
// in the log.
func (s *Suite) Run(ctx context.Context, log *coiled.Log, scenarios []Scenario) error {
	if s.Executor == nil {
		return errors.E(errors.Invalid, "bench: no executor")
	}
	// Validate scenarios up front so that configuration errors don't
	// surface midway through a long run.
	for _, sc := range scenarios {
		if _, err := dataframe.Computation(sc.Op); err != nil {
			return err
		}
		if sc.Partitions <= 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("scenario %s: invalid partition count", sc))
		}
	}
	for i := 0; i < len(scenarios); {
		key := frameKey{scenarios[i].Partitions, scenarios[i].Persist}
		j := i + 1
		for j < len(scenarios) && (frameKey{scenarios[j].Partitions, scenarios[j].Persist}) == key {
			j++
		}
		if err := s.runGroup(ctx, log, key, scenarios[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

func (s *Suite) harness() *coiled.Harness {
	if s.Harness == nil {
		return new(coiled.Harness)
	}
	return s.Harness
}

func (s *Suite) runGroup(ctx context.Context, benchLog *coiled.Log, key frameKey, scenarios []Scenario) error {
	var task *status.Task
	if s.Status != nil {
		task = s.Status.Start(fmt.Sprintf("p%d persist=%v", key.partitions, key.persist))
		defer task.Done()
	}
	printf := func(format string, args ...interface{}) {
		if task != nil {
			task.Printf(format, args...)
		}
	}
	before, err := s.Executor.Stats(ctx)
	if err != nil {
		log.Error.Printf("executor stats: %v", err)
	}
	defer func() {
		if before == nil {
			return
		}
		after, err := s.Executor.Stats(ctx)
		if err != nil {
			log.Error.Printf("executor stats: %v", err)
			return
		}
		log.Printf("p%d persist=%v: %s", key.partitions, key.persist, after.Sub(before))
	}()
	printf("opening frame")
	frame, err := dataframe.OpenFormat(ctx, s.Executor, s.Format, key.partitions, s.Paths...)
	if err != nil {
		return s.fail(fmt.Sprintf("open frame with %d partitions", key.partitions), err)
	}
	if key.persist {
		printf("persisting")
		d, err := s.harness().RunTimed(func() error { return frame.Persist(ctx) })
		if err != nil {
			return s.fail(fmt.Sprintf("persist frame with %d partitions", key.partitions), err)
		}
		log.Printf("persisted %d partitions in %s", frame.NumPartition(), d)
		defer func() {
			if err := frame.Unpersist(ctx); err != nil {
				log.Error.Printf("unpersist frame with %d partitions: %v", key.partitions, err)
			}
		}()
	}
	for _, sc := range scenarios {
		printf("running %s", sc.Label())
		comp, err := dataframe.Computation(sc.Op)
		if err != nil {
			return err
		}
		if _, err := s.harness().RunAndRecord(ctx, comp, frame, benchLog, sc.Label(), s.Options); err != nil {
			if err := s.fail(sc.Label(), err); err != nil {
				return err
			}
		}
	}
	printf("done")
	return nil
}

// fail returns the error wrapped with what failed, or logs it and
// returns nil if the suite keeps going.
func (s *Suite) fail(what string, err error) error {
	if s.KeepGoing {
		log.Error.Printf("%s: %v", what, err)
		return nil
	}
	return errors.E(what, err)
}
