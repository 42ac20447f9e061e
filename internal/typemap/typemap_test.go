package typemap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/typemap"
)

func TestStripVolatileDefault(t *testing.T) {
	cases := map[string]bool{
		"sysdate":              true,
		"SYSDATE":              true,
		"  CURRENT_TIMESTAMP ": true,
		"getdate()":            true,
		"NOW()":                true,
		"'2024-01-01'":         false,
		"0":                    false,
	}
	for in, want := range cases {
		assert.Equalf(t, want, typemap.StripVolatileDefault(in), "input=%q", in)
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	overrides := typemap.Overrides{"s.t.c": "text"}
	render := func(typemap.ColumnType) (string, error) { return "varchar(10)", nil }

	got, err := typemap.Resolve("s.t.c", typemap.ColumnType{Kind: typemap.KindVarChar}, overrides, nil, render)
	require.NoError(t, err)
	assert.Equal(t, "text", got)
}

func TestResolve_NativeTableBeatsRender(t *testing.T) {
	native := typemap.NativeTable{"number": "numeric"}
	render := func(typemap.ColumnType) (string, error) { return "should-not-be-used", nil }

	got, err := typemap.Resolve("s.t.c", typemap.ColumnType{Kind: typemap.KindDecimal, Raw: "number"}, nil, native, render)
	require.NoError(t, err)
	assert.Equal(t, "numeric", got)
}

func TestResolve_FallsBackToRender(t *testing.T) {
	render := func(typemap.ColumnType) (string, error) { return "text", nil }
	got, err := typemap.Resolve("s.t.c", typemap.ColumnType{Kind: typemap.KindClob}, nil, nil, render)
	require.NoError(t, err)
	assert.Equal(t, "text", got)
}

func TestColumnType_IsLOB(t *testing.T) {
	assert.True(t, typemap.ColumnType{Kind: typemap.KindBlob}.IsLOB())
	assert.True(t, typemap.ColumnType{Kind: typemap.KindClob}.IsLOB())
	assert.False(t, typemap.ColumnType{Kind: typemap.KindVarChar}.IsLOB())
}
