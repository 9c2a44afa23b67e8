// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package linerange

import (
	"bytes"
	"io"
	"io/ioutil"
	"math/rand"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
)

func readRange(t *testing.T, data []byte, start, end int64, bufsize int) string {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data), start, end, bufsize)
	if err != nil {
		t.Fatal(err)
	}
	p, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(p)
}

func TestReader(t *testing.T) {
	data := []byte("abc\ndefgh\n\nij\nk")
	for _, c := range []struct {
		start, end int64
		want       string
	}{
		{0, 0, ""},
		{0, 1, "abc\n"},
		{0, 4, "abc\n"},
		{0, 5, "abc\ndefgh\n"},
		{1, 4, ""},
		{3, 4, ""},
		{4, 5, "defgh\n"},
		{4, 10, "defgh\n"},
		{4, 11, "defgh\n\n"},
		{10, 11, "\n"},
		{11, 100, "ij\nk"},
		{13, 100, "k"},
		{14, 100, "k"},
		{15, 100, ""},
		{100, 200, ""},
	} {
		if got, want := readRange(t, data, c.start, c.end, 16), c.want; got != want {
			t.Errorf("[%d, %d): got %q, want %q", c.start, c.end, got, want)
		}
	}
}

func TestReaderInvalid(t *testing.T) {
	r := bytes.NewReader(nil)
	if _, err := NewReader(r, -1, 10, 16); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := NewReader(r, 10, 5, 16); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}

func TestDiscard(t *testing.T) {
	data := []byte("header\nrow1\nrow2\n")
	r, err := NewReader(bytes.NewReader(data), 0, int64(len(data)), 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Discard(1); err != nil {
		t.Fatal(err)
	}
	if got, want := r.Pos(), int64(len("header\n")); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	p, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(p), "row1\nrow2\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	// Discarding past the end is fine.
	if err := r.Discard(3); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("got %v, want EOF", err)
	}
}

// TestPartitions checks that adjacent ranges together yield every
// line exactly once, for arbitrary split points.
func TestPartitions(t *testing.T) {
	const N = 50
	fz := fuzz.New()
	fz.NilChance(0)
	fz.NumElements(1, 200)
	for i := 0; i < N; i++ {
		var lines []string
		fz.Fuzz(&lines)
		for j := range lines {
			lines[j] = strings.Replace(lines[j], "\n", "", -1)
		}
		text := strings.Join(lines, "\n")
		if i%2 == 0 {
			text += "\n"
		}
		data := []byte(text)
		var (
			size   = int64(len(data))
			nsplit = rand.Intn(10) + 1
			splits = []int64{0}
		)
		for j := 0; j < nsplit; j++ {
			splits = append(splits, rand.Int63n(size+1))
		}
		splits = append(splits, size)
		sortInt64s(splits)
		var (
			b     strings.Builder
			nread int64
		)
		for j := 1; j < len(splits); j++ {
			// Small buffers exercise lines longer than the buffer.
			r, err := NewReader(bytes.NewReader(data), splits[j-1], splits[j], 16)
			if err != nil {
				t.Fatal(err)
			}
			p, err := ioutil.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			b.Write(p)
			nread += r.BytesRead()
		}
		if got, want := nread, size; got != want {
			t.Errorf("splits %v: read %v bytes, want %v", splits, got, want)
		}
		if got, want := b.String(), text; got != want {
			t.Fatalf("splits %v: got %q, want %q", splits, got, want)
		}
	}
}

func sortInt64s(x []int64) {
	for i := 1; i < len(x); i++ {
		for j := i; j > 0 && x[j] < x[j-1]; j-- {
			x[j], x[j-1] = x[j-1], x[j]
		}
	}
}
