// Package typemap translates column types between the four supported
// engines through a generic intermediate representation, the same way the
// original migrator walked a reference ordering of abstract types instead
// of mapping every engine pair directly.
package typemap

import "fmt"

// Kind is the abstract shape a column's native type is reduced to before
// it is rendered back into a target engine's DDL.
type Kind int

const (
	KindOther Kind = iota
	KindInt
	KindDecimal
	KindBool
	KindChar
	KindVarChar
	KindText
	KindBinary
	KindVarBinary
	KindBlob
	KindClob
	KindDate
	KindTime
	KindTimestamp
	KindXML
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindVarChar:
		return "varchar"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindVarBinary:
		return "varbinary"
	case KindBlob:
		return "blob"
	case KindClob:
		return "clob"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindTimestamp:
		return "timestamp"
	case KindXML:
		return "xml"
	default:
		return "other"
	}
}

// ColumnType is the tagged-variant intermediate representation a source
// column's native type is reduced to. Only the fields relevant to Kind are
// meaningful; the rest are zero.
type ColumnType struct {
	Kind      Kind
	Width     int  // bit width for KindInt
	Signed    bool // KindInt
	Precision int  // KindDecimal
	Scale     int  // KindDecimal
	Length    int  // KindChar/KindVarChar/KindBinary/KindVarBinary; 0 means unbounded
	WithTZ    bool // KindTime/KindTimestamp
	Raw       string
}

// IsLOB reports whether values of this type must move through the chunked
// LOB path instead of an ordinary bulk INSERT parameter.
func (c ColumnType) IsLOB() bool {
	switch c.Kind {
	case KindBlob, KindClob:
		return true
	default:
		return false
	}
}

// referenceOrder is the ladder the mapper walks when no native or override
// mapping names the target type directly: widen within the same family
// until a representable target type is found.
var referenceOrder = map[Kind][]Kind{
	KindInt:       {KindInt, KindDecimal, KindVarChar, KindText},
	KindDecimal:   {KindDecimal, KindVarChar, KindText},
	KindBool:      {KindBool, KindInt, KindVarChar},
	KindChar:      {KindChar, KindVarChar, KindText},
	KindVarChar:   {KindVarChar, KindText},
	KindText:      {KindText, KindClob},
	KindBinary:    {KindBinary, KindVarBinary, KindBlob},
	KindVarBinary: {KindVarBinary, KindBlob},
	KindBlob:      {KindBlob},
	KindClob:      {KindClob, KindText},
	KindDate:      {KindDate, KindTimestamp, KindVarChar},
	KindTime:      {KindTime, KindVarChar},
	KindTimestamp: {KindTimestamp, KindVarChar},
	KindXML:       {KindXML, KindClob, KindText},
}

// ReferenceLadder returns the widening path used to find a representable
// target type when neither a native table entry nor an override applies.
func ReferenceLadder(k Kind) []Kind {
	if ladder, ok := referenceOrder[k]; ok {
		return ladder
	}
	return []Kind{KindOther, KindVarChar, KindText}
}

// NativeTable holds a direct, engine-pair-specific mapping from a source
// native type name (lowercased, no length/precision suffix) to a target
// native type name. Engine adapters populate one of these per target
// engine they know a richer-than-generic mapping for.
type NativeTable map[string]string

// Lookup returns the target native type name for a source type name, and
// whether an entry existed.
func (t NativeTable) Lookup(sourceTypeName string) (string, bool) {
	name, ok := t[sourceTypeName]
	return name, ok
}

// Overrides is a per-migration-request table of column-path ("schema.table.column")
// to forced target type strings, taking precedence over both native tables
// and the reference ladder.
type Overrides map[string]string

// Resolve decides the final DDL type string for a column given, in
// precedence order: an explicit override, the target engine's native
// table, then the reference ladder rendered through the target's renderer.
func Resolve(columnPath string, generic ColumnType, overrides Overrides, native NativeTable, render func(ColumnType) (string, error)) (string, error) {
	if overrides != nil {
		if forced, ok := overrides[columnPath]; ok {
			return forced, nil
		}
	}
	if native != nil {
		if name, ok := native.Lookup(generic.Raw); ok {
			return name, nil
		}
	}
	var lastErr error
	for _, k := range ReferenceLadder(generic.Kind) {
		candidate := generic
		candidate.Kind = k
		rendered, err := render(candidate)
		if err == nil {
			return rendered, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("typemap: resolve %s: %w", columnPath, lastErr)
}

// StripVolatileDefault reports whether a source default expression is a
// function-call default tied to the source engine's clock or session
// (sysdate, systimestamp, current_timestamp, current_date, current_time,
// localtimestamp, getdate(), sysdatetime(), now()) that must be
// dropped rather than carried to the target, since the target engine
// would either reject the literal syntax or evaluate it at the wrong time.
func StripVolatileDefault(expr string) bool {
	switch normalizeDefault(expr) {
	case "sysdate", "systimestamp", "current_timestamp", "current_date",
		"current_time", "getdate()", "now()", "sysdatetime()", "localtimestamp":
		return true
	default:
		return false
	}
}

func normalizeDefault(expr string) string {
	out := make([]byte, 0, len(expr))
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == ' ' || c == '\t' || c == '\n' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out = append(out, c)
	}
	return string(out)
}
