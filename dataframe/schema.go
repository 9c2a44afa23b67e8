// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataframe

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/grailbio/base/errors"
)

// Type is the type of a dataframe column.
type Type int

const (
	// String columns hold UTF-8 text.
	String Type = iota
	// Int64 columns hold signed 64-bit integers.
	Int64
	// Float64 columns hold 64-bit floating point numbers.
	Float64
)

var typeNames = map[Type]string{
	String:  "string",
	Int64:   "int64",
	Float64: "float64",
}

// String returns the type's name, as accepted by ParseSchema.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Numeric tells whether values of this type can be summed.
func (t Type) Numeric() bool {
	return t == Int64 || t == Float64
}

func (t Type) arrow() arrow.DataType {
	switch t {
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Float64:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

func parseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "string", "str", "utf8":
		return String, nil
	case "int64", "int", "long":
		return Int64, nil
	case "float64", "float", "double":
		return Float64, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown column type %q", s))
}

// A Column is a named, typed dataframe column.
type Column struct {
	Name string
	Type Type
}

// A Schema is the ordered set of columns of a dataframe. The order of
// the schema's columns is the order of the fields in each CSV row.
type Schema []Column

// ParseSchema parses a schema of the form "name:type,name:type,...".
// A column without a type is a string column.
func ParseSchema(s string) (Schema, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.E(errors.Invalid, "empty schema")
	}
	var (
		schema Schema
		seen   = make(map[string]bool)
	)
	for _, field := range strings.Split(s, ",") {
		var (
			parts = strings.SplitN(strings.TrimSpace(field), ":", 2)
			col   = Column{Name: parts[0], Type: String}
		)
		if col.Name == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("schema %q: empty column name", s))
		}
		if seen[col.Name] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("schema %q: duplicate column %s", s, col.Name))
		}
		seen[col.Name] = true
		if len(parts) == 2 {
			var err error
			if col.Type, err = parseType(parts[1]); err != nil {
				return nil, err
			}
		}
		schema = append(schema, col)
	}
	return schema, nil
}

// String returns the schema in the format accepted by ParseSchema.
func (s Schema) String() string {
	fields := make([]string, len(s))
	for i, col := range s {
		fields[i] = col.Name + ":" + col.Type.String()
	}
	return strings.Join(fields, ",")
}

// Index returns the index of the named column, or -1 if the schema
// does not contain it.
func (s Schema) Index(name string) int {
	for i, col := range s {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the index of the named column. It returns an
// errors.Invalid error if the column does not exist, or if numeric is
// true and the column cannot be summed.
func (s Schema) Lookup(name string, numeric bool) (int, error) {
	i := s.Index(name)
	if i < 0 {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("no column named %q in schema %s", name, s))
	}
	if numeric && !s[i].Type.Numeric() {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("column %q has non-numeric type %s", name, s[i].Type))
	}
	return i, nil
}

// Arrow returns the arrow schema corresponding to s. All columns are
// nullable.
func (s Schema) Arrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s))
	for i, col := range s {
		fields[i] = arrow.Field{Name: col.Name, Type: col.Type.arrow(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// Format describes the layout of the CSV files backing a frame.
type Format struct {
	Schema Schema
	// Header indicates that the first line of every file is a header
	// row, which is skipped.
	Header bool
	// Comma is the field delimiter. The zero value means ','.
	Comma rune
}

// CSV returns the default format for schema: comma separated, with a
// header row.
func CSV(schema Schema) Format {
	return Format{Schema: schema, Header: true, Comma: ','}
}

func (f Format) comma() rune {
	if f.Comma == 0 {
		return ','
	}
	return f.Comma
}
