package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
)

func col(name string) models.Column {
	return models.Column{Name: name, Type: models.TypeNumber}
}

func ordersCatalog() *models.Catalog {
	orders := &models.Table{
		Schema:  "main",
		Name:    "orders",
		Columns: []models.Column{col("id")},
		Keys:    []models.Column{col("id")},
	}
	items := &models.Table{
		Schema:  "main",
		Name:    "items",
		Columns: []models.Column{col("id"), {Name: "name", Type: models.TypeString}},
		Keys:    []models.Column{col("id")},
	}
	orderItems := &models.Table{
		Schema:  "main",
		Name:    "order_items",
		Columns: []models.Column{col("order_id"), col("item_id")},
		Keys:    []models.Column{col("order_id"), col("item_id")},
		References: []models.Reference{
			{FromSchema: "main", FromTable: "order_items", FromColumns: []string{"order_id"}, ToSchema: "main", ToTable: "orders", ToColumns: []string{"id"}},
			{FromSchema: "main", FromTable: "order_items", FromColumns: []string{"item_id"}, ToSchema: "main", ToTable: "items", ToColumns: []string{"id"}},
		},
	}
	return models.NewCatalog([]*models.Table{orders, items, orderItems})
}

func TestBackReferencesAreSymmetric(t *testing.T) {
	catalog := ordersCatalog()
	require.Empty(t, BuildReferentialGraph(catalog))

	for _, table := range catalog.Tables() {
		for _, ref := range table.References {
			target, ok := catalog.Table(ref.To())
			require.True(t, ok)
			assert.Contains(t, target.BackReferences, ref.Reversed())
		}
		for _, back := range table.BackReferences {
			holder, ok := catalog.Table(back.To())
			require.True(t, ok)
			assert.Contains(t, holder.References, back.Reversed())
		}
	}

	orders, _ := catalog.Table("main.orders")
	require.Len(t, orders.BackReferences, 1)
	assert.Equal(t, "main.orders", orders.BackReferences[0].From())
	assert.Equal(t, []string{"id"}, orders.BackReferences[0].FromColumns)
	assert.Equal(t, []string{"order_id"}, orders.BackReferences[0].ToColumns)
}

func TestRelatedDataMatchesReferences(t *testing.T) {
	catalog := ordersCatalog()
	require.Empty(t, BuildReferentialGraph(catalog))

	for _, table := range catalog.Tables() {
		assert.Len(t, table.RelatedData, len(table.References)+len(table.BackReferences), table.Name)
		for _, related := range table.RelatedData {
			assert.Equal(t, len(related.JoinColumns), len(related.ToTableJoinColumns))
		}
	}

	orderItems, _ := catalog.Table("main.order_items")
	require.Len(t, orderItems.RelatedData, 2)
	assert.Equal(t, "main.orders", orderItems.RelatedData[0].ToTable)
	assert.Equal(t, "order_id", orderItems.RelatedData[0].JoinColumns[0].Name)
	assert.Equal(t, "id", orderItems.RelatedData[0].ToTableJoinColumns[0].Name)

	items, _ := catalog.Table("main.items")
	require.Len(t, items.RelatedData, 1)
	assert.Equal(t, "main.order_items", items.RelatedData[0].ToTable)
	assert.Equal(t, "item_id", items.RelatedData[0].ToTableJoinColumns[0].Name)
}

func TestSelfReferenceTerminates(t *testing.T) {
	people := &models.Table{
		Schema:  "main",
		Name:    "people",
		Columns: []models.Column{col("id"), col("parent_id")},
		Keys:    []models.Column{col("id")},
		References: []models.Reference{
			{FromSchema: "main", FromTable: "people", FromColumns: []string{"parent_id"}, ToSchema: "main", ToTable: "people", ToColumns: []string{"id"}},
		},
	}
	catalog := models.NewCatalog([]*models.Table{people})
	require.Empty(t, BuildReferentialGraph(catalog))

	assert.Len(t, people.BackReferences, 1)
	assert.Len(t, people.RelatedData, 2)
	for _, related := range people.RelatedData {
		assert.Equal(t, "main.people", related.ToTable)
	}
}

func TestIsolatedTableHasNoRelatedData(t *testing.T) {
	things := &models.Table{Schema: "main", Name: "things", Columns: []models.Column{col("id")}}
	catalog := models.NewCatalog([]*models.Table{things})
	require.Empty(t, BuildReferentialGraph(catalog))
	assert.Empty(t, things.RelatedData)
	assert.Empty(t, things.BackReferences)
}

func TestUnresolvableReferencesAreReported(t *testing.T) {
	broken := &models.Table{
		Schema:  "main",
		Name:    "broken",
		Columns: []models.Column{col("id")},
		References: []models.Reference{
			{FromSchema: "main", FromTable: "broken", FromColumns: []string{"id"}, ToSchema: "main", ToTable: "missing", ToColumns: []string{"id"}},
		},
	}
	catalog := models.NewCatalog([]*models.Table{broken})
	problems := BuildReferentialGraph(catalog)
	assert.Len(t, problems, 1)
	assert.Empty(t, broken.RelatedData)
}

func TestRebuildIsIdempotent(t *testing.T) {
	catalog := ordersCatalog()
	require.Empty(t, BuildReferentialGraph(catalog))
	require.Empty(t, BuildReferentialGraph(catalog))

	orders, _ := catalog.Table("main.orders")
	assert.Len(t, orders.BackReferences, 1)
	assert.Len(t, orders.RelatedData, 1)
}
