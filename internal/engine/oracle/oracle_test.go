package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/engine"
)

func TestBuildConnectionURL_RequiresServiceNameWithoutTNSAlias(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	_, err := a.BuildConnectionURL(engine.Config{Host: "db.internal"})
	require.Error(t, err)
}

func TestBuildConnectionURL_AcceptsTNSAliasAlone(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	url, err := a.BuildConnectionURL(engine.Config{TNSAlias: "ORCLPDB", User: "u", Password: "p"})
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestBuildPaginatedSelect_DefaultsToRowidOrder(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	got := a.BuildPaginatedSelect("APP", "CUSTOMERS", []string{"ID", "NAME"}, nil, 10, 5)
	assert.Equal(t, `SELECT ID, NAME FROM APP.CUSTOMERS ORDER BY ROWID OFFSET 10 ROWS FETCH NEXT 5 ROWS ONLY`, got)
}

func TestBuildBulkInsert_UsesPositionalBindMarkersRepeatedPerRow(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	got := a.BuildBulkInsert("APP", "CUSTOMERS", []string{"ID", "NAME"}, 2)
	assert.Equal(t, `INSERT INTO APP.CUSTOMERS (ID, NAME) VALUES (:1, :2), (:3, :4)`, got)
}

func TestBuildLOBUpdate_ValuePlaceholderPrecedesKeys(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	got := a.BuildLOBUpdate("APP", "DOCS", []string{"ID"}, "BODY")
	assert.Equal(t, `UPDATE APP.DOCS SET BODY = :1 WHERE ID = :2`, got)
}
