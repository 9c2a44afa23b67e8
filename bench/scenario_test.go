// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
)

func TestLabel(t *testing.T) {
	for _, c := range []struct {
		sc   Scenario
		want string
	}{
		{Scenario{"count", 1, true}, "count_persisted_p1"},
		{Scenario{"mean", 16, false}, "mean_unpersisted_p16"},
		{Scenario{"groupby-sum", 4, true}, "groupby-sum_persisted_p4"},
	} {
		if got, want := c.sc.Label(), c.want; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestMatrix(t *testing.T) {
	scenarios := Matrix([]string{"count", "mean"}, []int{1, 4}, []bool{false, true})
	var labels []string
	for _, sc := range scenarios {
		labels = append(labels, sc.Label())
	}
	want := []string{
		"count_unpersisted_p1",
		"mean_unpersisted_p1",
		"count_persisted_p1",
		"mean_persisted_p1",
		"count_unpersisted_p4",
		"mean_unpersisted_p4",
		"count_persisted_p4",
		"mean_persisted_p4",
	}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("got %v, want %v", labels, want)
	}
	if got, want := len(Matrix(nil, []int{1}, []bool{true})), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParse(t *testing.T) {
	counts, err := ParsePartitions("1, 4,16")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := counts, []int{1, 4, 16}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, s := range []string{"", "0", "-1", "x", "1,,y"} {
		if _, err := ParsePartitions(s); !errors.Is(errors.Invalid, err) {
			t.Errorf("%q: got %v, want invalid", s, err)
		}
	}
	persist, err := ParsePersist("both")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := persist, []bool{false, true}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := ParsePersist("sometimes"); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	ops, err := ParseOps("count, mean,")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ops, []string{"count", "mean"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := ParseOps(" , "); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}
