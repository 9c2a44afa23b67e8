// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package report renders benchmark logs as tables.
package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/MrPowers/coiled"
	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/csv"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Schema is the schema of the table returned by Table.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "label", Type: arrow.BinaryTypes.String},
	{Name: "duration_seconds", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Table returns the log as an arrow record with one row per log
// record, in log order. The caller must release the returned record.
func Table(log *coiled.Log) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, Schema)
	defer b.Release()
	var (
		labels  = b.Field(0).(*array.StringBuilder)
		seconds = b.Field(1).(*array.Float64Builder)
	)
	for _, r := range log.Records() {
		labels.Append(r.Label)
		seconds.Append(r.Seconds())
	}
	return b.NewRecord()
}

// Format is a report format.
type Format string

const (
	Markdown Format = "md"
	CSV      Format = "csv"
	JSON     Format = "json"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "md", "markdown":
		return Markdown, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	}
	return "", errors.E(errors.Invalid, fmt.Sprintf("unknown report format %q", s))
}

// FormatOf returns the format implied by a path's extension, or
// Markdown if the extension is not recognized.
func FormatOf(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Markdown
	}
	return f
}

// Render writes the log to w in the provided format.
func Render(w io.Writer, format Format, log *coiled.Log) error {
	switch format {
	case Markdown:
		return WriteMarkdown(w, log)
	case CSV:
		return WriteCSV(w, log)
	case JSON:
		return WriteJSON(w, log)
	}
	return errors.E(errors.Invalid, fmt.Sprintf("unknown report format %q", format))
}

// WriteMarkdown writes a markdown table of the log's records, with
// each record's duration relative to the fastest record.
func WriteMarkdown(w io.Writer, log *coiled.Log) error {
	records := log.Records()
	if len(records) == 0 {
		return errors.E(errors.Invalid, "no records to report")
	}
	fastest := math.Inf(1)
	for _, r := range records {
		if s := r.Seconds(); s > 0 && s < fastest {
			fastest = s
		}
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "| Label | Duration (s) | Relative |")
	fmt.Fprintln(bw, "|-------|--------------|----------|")
	for _, r := range records {
		relative := 1.0
		if s := r.Seconds(); s > 0 && !math.IsInf(fastest, 1) {
			relative = s / fastest
		}
		fmt.Fprintf(bw, "| %s | %.6f | %.2fx |\n", r.Label, r.Seconds(), relative)
	}
	return bw.Flush()
}

// WriteCSV writes the log's table as CSV, with a header row.
func WriteCSV(w io.Writer, log *coiled.Log) error {
	rec := Table(log)
	defer rec.Release()
	cw := csv.NewWriter(w, Schema, csv.WithHeader(true))
	if err := cw.Write(rec); err != nil {
		return err
	}
	if err := cw.Flush(); err != nil {
		return err
	}
	return cw.Error()
}

type jsonRecord struct {
	Label           string  `json:"label"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// WriteJSON writes the log's records as an indented JSON array.
func WriteJSON(w io.Writer, log *coiled.Log) error {
	records := log.Records()
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = jsonRecord{r.Label, r.Seconds()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Write renders the log in the provided format to the file at path.
// Paths are interpreted by github.com/grailbio/base/file, so that
// registered implementations such as S3 may be used.
func Write(ctx context.Context, path string, format Format, log *coiled.Log) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(ctx); err == nil {
			err = cerr
		}
	}()
	return Render(f.Writer(ctx), format, log)
}
