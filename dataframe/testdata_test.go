// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
)

var testSchema = Schema{
	{"vendor", String},
	{"passengers", Int64},
	{"fare", Float64},
}

type testRow struct {
	Vendor     uint8
	Passengers int16
	Fare       float64
	// NullFare is set for rows with a missing fare.
	NullFare bool
}

func (r testRow) vendor() string {
	return fmt.Sprintf("v%d", r.Vendor%7)
}

func (r testRow) line() string {
	fare := strconv.FormatFloat(r.Fare, 'g', -1, 64)
	if r.NullFare {
		fare = ""
	}
	return fmt.Sprintf("%s,%d,%s\n", r.vendor(), r.Passengers, fare)
}

// fuzzRows returns n randomly generated rows.
func fuzzRows(n int) []testRow {
	fz := fuzz.New()
	fz.NilChance(0)
	fz.NumElements(n, n)
	var rows []testRow
	fz.Fuzz(&rows)
	return rows
}

// writeFiles writes the rows as CSV files with a header into dir,
// dividing them among nfile files. It returns the files' paths.
func writeFiles(t *testing.T, dir string, rows []testRow, nfile int) []string {
	t.Helper()
	paths := make([]string, nfile)
	for i := range paths {
		var b strings.Builder
		b.WriteString("vendor,passengers,fare\n")
		for j := i; j < len(rows); j += nfile {
			b.WriteString(rows[j].line())
		}
		paths[i] = filepath.Join(dir, fmt.Sprintf("part%d.csv", i))
		if err := ioutil.WriteFile(paths[i], []byte(b.String()), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

type expected struct {
	count      int64
	fareMean   float64
	paxMean    float64
	fareGroups map[string]float64
}

func expectedOf(rows []testRow) expected {
	var (
		e                  = expected{count: int64(len(rows)), fareGroups: make(map[string]float64)}
		fareSum, paxSum    float64
		fareCount, paxRows int64
	)
	for _, r := range rows {
		paxSum += float64(r.Passengers)
		paxRows++
		if r.NullFare {
			continue
		}
		fareSum += r.Fare
		fareCount++
		e.fareGroups[r.vendor()] += r.Fare
	}
	if fareCount > 0 {
		e.fareMean = fareSum / float64(fareCount)
	}
	if paxRows > 0 {
		e.paxMean = paxSum / float64(paxRows)
	}
	return e
}

func approxEqual(x, y float64) bool {
	return math.Abs(x-y) <= 1e-9*math.Max(1, math.Max(math.Abs(x), math.Abs(y)))
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
