// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrPowers/coiled/benchflags"
	"github.com/grailbio/testutil"
)

func TestScenarios(t *testing.T) {
	var (
		fl   benchflags.Flags
		out  bytes.Buffer
		root = newRootCmd(&fl)
	)
	root.SetOut(&out)
	root.SetArgs([]string{"scenarios", "--ops", "count,mean", "--partitions", "2,8", "--persist", "true"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	want := "count_persisted_p2\nmean_persisted_p2\ncount_persisted_p8\nmean_persisted_p8\n"
	if got := out.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestScenariosInvalid(t *testing.T) {
	var fl benchflags.Flags
	root := newRootCmd(&fl)
	root.SetArgs([]string{"scenarios", "--ops", "median"})
	if err := root.Execute(); err == nil {
		t.Error("expected error")
	}
}

func TestRun(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	var b strings.Builder
	b.WriteString("vendor,fare\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "v%d,%d\n", i%4, i)
	}
	data := filepath.Join(dir, "data.csv")
	if err := ioutil.WriteFile(data, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "report.json")

	var fl benchflags.Flags
	root := newRootCmd(&fl)
	root.SetArgs([]string{
		"run",
		"--data", data,
		"--schema", "vendor:string,fare:float64",
		"--partitions", "1,3",
		"--persist", "both",
		"--ops", "count,mean,groupby-sum",
		"--column", "fare", "--key", "vendor", "--value", "fare",
		"--out", out,
	})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	p, err := ioutil.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var records []struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(p, &records); err != nil {
		t.Fatal(err)
	}
	if got, want := len(records), 12; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := records[0].Label, "count_unpersisted_p1"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := records[11].Label, "groupby-sum_persisted_p3"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
