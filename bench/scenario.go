// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// A Scenario is a single benchmark: an operation evaluated over a
// frame with a given number of partitions, persisted or not.
type Scenario struct {
	// Op names the operation; see dataframe.Computation.
	Op string
	// Partitions is the number of partitions of the frame.
	Partitions int
	// Persist indicates that the frame is persisted before the
	// operation is evaluated.
	Persist bool
}

// Label returns the scenario's label, of the form
// {op}_{persisted|unpersisted}_p{partitions}.
func (s Scenario) Label() string {
	state := "unpersisted"
	if s.Persist {
		state = "persisted"
	}
	return fmt.Sprintf("%s_%s_p%d", s.Op, state, s.Partitions)
}

func (s Scenario) String() string {
	return s.Label()
}

// Matrix returns the cross product of the provided operations,
// partition counts, and persistence settings. Scenarios are ordered by
// partition count, then persistence, then operation, each in the order
// provided, so that scenarios sharing a frame are adjacent.
func Matrix(ops []string, partitions []int, persist []bool) []Scenario {
	scenarios := make([]Scenario, 0, len(ops)*len(partitions)*len(persist))
	for _, n := range partitions {
		for _, p := range persist {
			for _, op := range ops {
				scenarios = append(scenarios, Scenario{Op: op, Partitions: n, Persist: p})
			}
		}
	}
	return scenarios
}

// ParsePartitions parses a comma-separated list of positive partition
// counts.
func ParsePartitions(s string) ([]int, error) {
	var counts []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid partition count %q", field))
		}
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		return nil, errors.E(errors.Invalid, "no partition counts")
	}
	return counts, nil
}

// ParsePersist parses a persistence setting: "both" (unpersisted,
// then persisted), "true", or "false".
func ParsePersist(s string) ([]bool, error) {
	switch strings.ToLower(s) {
	case "both":
		return []bool{false, true}, nil
	case "true", "persisted", "yes":
		return []bool{true}, nil
	case "false", "unpersisted", "no":
		return []bool{false}, nil
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid persist setting %q", s))
}

// ParseOps parses a comma-separated list of operation names.
func ParseOps(s string) ([]string, error) {
	var ops []string
	for _, op := range strings.Split(s, ",") {
		if op = strings.TrimSpace(op); op != "" {
			ops = append(ops, op)
		}
	}
	if len(ops) == 0 {
		return nil, errors.E(errors.Invalid, "no operations")
	}
	return ops, nil
}
