package schema_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/schema"
)

func fk(name, col, refSchema, refTable, refCol string) schema.Constraint {
	return schema.Constraint{
		Name: name, Kind: schema.ConstraintForeignKey, Columns: []string{col},
		ReferencedSchema: refSchema, ReferencedTable: refTable, ReferencedColumns: []string{refCol},
	}
}

func TestTopologicalOrder_ParentsBeforeChildren(t *testing.T) {
	tables := []schema.Table{
		{Schema: "s", Name: "orders", Constraints: []schema.Constraint{fk("fk_cust", "customer_id", "s", "customers", "id")}},
		{Schema: "s", Name: "customers"},
		{Schema: "s", Name: "order_items", Constraints: []schema.Constraint{fk("fk_order", "order_id", "s", "orders", "id")}},
	}

	order, err := schema.NewGraph(tables).TopologicalOrder()
	require.NoError(t, err)

	pos := map[string]int{}
	for i, tb := range order {
		pos[tb.Name] = i
	}
	assert.Less(t, pos["customers"], pos["orders"])
	assert.Less(t, pos["orders"], pos["order_items"])
}

func TestTopologicalOrder_IgnoresSelfReference(t *testing.T) {
	tables := []schema.Table{
		{Schema: "s", Name: "employees", Constraints: []schema.Constraint{fk("fk_manager", "manager_id", "s", "employees", "id")}},
	}
	order, err := schema.NewGraph(tables).TopologicalOrder()
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"employees"}, []string{order[0].Name}); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestTopologicalOrder_DetectsCycle(t *testing.T) {
	tables := []schema.Table{
		{Schema: "s", Name: "a", Constraints: []schema.Constraint{fk("fk_b", "b_id", "s", "b", "id")}},
		{Schema: "s", Name: "b", Constraints: []schema.Constraint{fk("fk_a", "a_id", "s", "a", "id")}},
	}
	_, err := schema.NewGraph(tables).TopologicalOrder()
	require.Error(t, err)
	var cycleErr *schema.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"s.a", "s.b"}, cycleErr.Remaining)
}

func TestPrimaryKeyColumns(t *testing.T) {
	tb := schema.Table{
		Constraints: []schema.Constraint{
			{Kind: schema.ConstraintUnique, Columns: []string{"email"}},
			{Kind: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
		},
	}
	assert.Equal(t, []string{"id"}, tb.PrimaryKeyColumns())
}
