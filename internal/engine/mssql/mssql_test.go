package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/engine"
)

func TestBuildConnectionURL_AppendsInstanceName(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	url, err := a.BuildConnectionURL(engine.Config{Host: "db.internal", Database: "app", User: "u", Password: "p", InstanceName: "SQLEXPRESS"})
	require.NoError(t, err)
	assert.Contains(t, url, `db.internal\SQLEXPRESS`)
}

func TestBuildConnectionURL_RequiresHostAndDatabase(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	_, err := a.BuildConnectionURL(engine.Config{Host: "db.internal"})
	require.Error(t, err)
}

func TestBuildPaginatedSelect_DefaultsToConstantOrderWithoutKey(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	got := a.BuildPaginatedSelect("dbo", "Customers", []string{"Id"}, nil, 0, 100)
	assert.Equal(t, `SELECT Id FROM dbo.Customers ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 100 ROWS ONLY`, got)
}

func TestBuildBulkInsert_NumbersNamedParametersAcrossRows(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	got := a.BuildBulkInsert("dbo", "Customers", []string{"Id", "Name"}, 2)
	assert.Equal(t, `INSERT INTO dbo.Customers (Id, Name) VALUES (@p1, @p2), (@p3, @p4)`, got)
}
