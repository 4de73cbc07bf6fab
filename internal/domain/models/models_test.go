package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParametersUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		shape Shape
		count int
	}{
		{"null", `null`, ShapeNone, 0},
		{"empty object", `{}`, ShapeNone, 0},
		{"empty array", `[]`, ShapeNone, 0},
		{"object", `{"id": 1}`, ShapeSingle, 1},
		{"array", `[{"id": 1}, {"id": 2}]`, ShapeMany, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Parameters
			require.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			assert.Equal(t, tt.shape, p.Shape())
			assert.Len(t, p.All(), tt.count)
		})
	}

	var p Parameters
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &p))
}

func TestParametersApplyToAll(t *testing.T) {
	single := Single(ParameterSet{"id": 1})
	single.ApplyToAll("owner", "me")
	assert.Equal(t, "me", single.Single()["owner"])

	batch := Batch(ParameterSet{"id": 1}, ParameterSet{"id": 2})
	batch.ApplyToAll("owner", "me")
	for _, set := range batch.Batch() {
		assert.Equal(t, "me", set["owner"])
	}

	first, ok := batch.First()
	require.True(t, ok)
	assert.Equal(t, 1, first["id"])

	_, ok = NoParameters().First()
	assert.False(t, ok)
}

func TestResultsMarshal(t *testing.T) {
	body, err := json.Marshal(SingleResult(Row{"id": 100}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 100}`, string(body))

	body, err = json.Marshal(ManyResults(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(body))

	body, err = json.Marshal(NoResults())
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))

	var r Results
	require.NoError(t, json.Unmarshal([]byte(`[]`), &r))
	assert.Equal(t, ShapeMany, r.Shape())
	assert.Empty(t, r.Rows())
}

func TestLastGrantWins(t *testing.T) {
	ctx := NewContext(NoParameters())
	assert.False(t, ctx.Allowed())

	ctx.Allow("ok")
	assert.True(t, ctx.Allowed())

	ctx.Deny("stray")
	assert.False(t, ctx.Allowed())
	last, ok := ctx.LastGrant()
	require.True(t, ok)
	assert.Equal(t, "stray", last.Message)
	assert.Len(t, ctx.Grants, 2)
}

func TestPaths(t *testing.T) {
	things := &Table{Schema: "main", Name: "things"}
	restPath := TableRestPath(things) + "/" + string(VerbRead)
	assert.Equal(t, "autocrud/main/things/read", restPath)
	assert.Equal(t, "default_autocrud_main_things_read", ContextName("default", restPath))
	assert.Equal(t, []string{
		"",
		"autocrud",
		"autocrud/main",
		"autocrud/main/things",
		"autocrud/main/things/read",
	}, HandlerPaths(restPath))
	assert.Equal(t, "autocrud/things", TableRestPath(&Table{Name: "things"}))
}

func TestCatalog(t *testing.T) {
	catalog := NewCatalog([]*Table{
		{Schema: "main", Name: "orders"},
		{Schema: "main", Name: "items"},
	})
	assert.Equal(t, 2, catalog.Len())
	assert.Equal(t, "main.items", catalog.Tables()[0].QualifiedName())

	orders, ok := catalog.Table("main.orders")
	require.True(t, ok)
	assert.Equal(t, "orders", orders.Name)
	assert.Len(t, catalog.Schemas()["main"], 2)

	var empty *Catalog
	_, ok = empty.Table("main.orders")
	assert.False(t, ok)
}

func TestTableColumnSets(t *testing.T) {
	id := Column{Name: "id", Type: TypeNumber}
	name := Column{Name: "order_name", SQLName: "order name", Type: TypeString}
	table := &Table{Columns: []Column{id, name}, Keys: []Column{id}, AutoColumns: []Column{id}}

	assert.Equal(t, []Column{name}, table.NonKeys())
	assert.Equal(t, []Column{name}, table.Writable())
	found, ok := table.ColumnByPhysical("order name")
	require.True(t, ok)
	assert.Equal(t, "order_name", found.Name)
	assert.Equal(t, "order name", found.Physical())
	assert.Equal(t, "id", id.Physical())
}
