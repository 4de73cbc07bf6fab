package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
)

func TestThingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, thingsSchema)
	things := services.NewClient(m, services.AllowAll).Autocrud("default", "things")

	created, err := things.Create(ctx, models.ParameterSet{"id": 100, "name": "hi there"})
	require.NoError(t, err)
	assert.Equal(t, models.ShapeSingle, created.Shape())
	assert.Equal(t, models.Row{"id": int64(100)}, created.Single())

	all, err := things.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Row{{"id": int64(100), "name": "hi there"}}, all.Rows())

	updated, err := things.Update(ctx, models.ParameterSet{"id": 100, "name": "super"})
	require.NoError(t, err)
	assert.Equal(t, models.Row{"id": 100, "name": "super"}, updated.Single())

	one, err := things.Read(ctx, models.ParameterSet{"id": 100})
	require.NoError(t, err)
	require.Len(t, one.Rows(), 1)
	assert.Equal(t, "super", one.Rows()[0]["name"])

	_, err = things.Delete(ctx, models.ParameterSet{"id": 100})
	require.NoError(t, err)

	all, err = things.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ShapeMany, all.Shape())
	assert.Empty(t, all.Rows())
}

func TestUpdateKeepsValueOnNull(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, thingsSchema)
	things := services.NewClient(m, services.AllowAll).Autocrud("default", "things")

	_, err := things.Create(ctx, models.ParameterSet{"id": 1, "name": "kept"})
	require.NoError(t, err)

	// a missing parameter binds NULL as well
	_, err = things.Update(ctx, models.ParameterSet{"id": 1, "name": nil})
	require.NoError(t, err)
	_, err = things.Update(ctx, models.ParameterSet{"id": 1})
	require.NoError(t, err)

	rows, err := things.Read(ctx, models.ParameterSet{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "kept", rows.Rows()[0]["name"])
}

func TestDeleteIgnoresExtraParameters(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, thingsSchema)
	things := services.NewClient(m, services.AllowAll).Autocrud("default", "things")

	_, err := things.Create(ctx, models.ParameterSet{"id": 1, "name": "a"}, models.ParameterSet{"id": 2, "name": "b"})
	require.NoError(t, err)

	read, err := things.Read(ctx, models.ParameterSet{"id": 1})
	require.NoError(t, err)

	// read output goes straight back in
	deleted, err := things.Delete(ctx, read.Rows()...)
	require.NoError(t, err)
	assert.Equal(t, []models.Row{{"id": int64(1)}}, deleted.Rows())

	rest, err := things.Read(ctx)
	require.NoError(t, err)
	require.Len(t, rest.Rows(), 1)
	assert.Equal(t, int64(2), rest.Rows()[0]["id"])
}

func TestCreateBatchPreservesOrder(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, ordersSchema)
	orders := services.NewClient(m, services.AllowAll).Autocrud("default", "orders")

	customers := []string{"ada", "grace", "linus", "barbara", "ken"}
	batch := make([]models.ParameterSet, 0, len(customers))
	for _, c := range customers {
		batch = append(batch, models.ParameterSet{"customer": c})
	}

	created, err := orders.Create(ctx, batch...)
	require.NoError(t, err)
	require.Len(t, created.Rows(), len(customers))

	for i, key := range created.Rows() {
		rows, err := orders.Read(ctx, key)
		require.NoError(t, err)
		require.Len(t, rows.Rows(), 1)
		assert.Equal(t, customers[i], rows.Rows()[0]["customer"])
	}
}

func TestBatchFailureRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, thingsSchema)
	things := services.NewClient(m, services.AllowAll).Autocrud("default", "things")

	_, err := things.Create(ctx,
		models.ParameterSet{"id": 1, "name": "a"},
		models.ParameterSet{"id": 1, "name": "duplicate"},
	)
	require.Error(t, err)

	rows, err := things.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows.Rows())
	assert.Equal(t, 0, defaultDB(t, m).Transactions().Depth())
}

func TestReadBatchFlattens(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, thingsSchema)
	things := services.NewClient(m, services.AllowAll).Autocrud("default", "things")

	_, err := things.Create(ctx,
		models.ParameterSet{"id": 1, "name": "a"},
		models.ParameterSet{"id": 2, "name": "b"},
		models.ParameterSet{"id": 3, "name": "c"},
	)
	require.NoError(t, err)

	rows, err := things.Read(ctx, models.ParameterSet{"id": 3}, models.ParameterSet{"id": 42}, models.ParameterSet{"id": 1})
	require.NoError(t, err)
	require.Len(t, rows.Rows(), 2)
	assert.Equal(t, "c", rows.Rows()[0]["name"])
	assert.Equal(t, "a", rows.Rows()[1]["name"])
}

func TestMutatingVerbsRequireParameters(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, ordersSchema)
	client := services.NewClient(m, services.AllowAll)

	for _, call := range []func(context.Context, ...models.ParameterSet) (models.Results, error){
		client.Autocrud("default", "orders").Create,
		client.Autocrud("default", "orders").Update,
		client.Autocrud("default", "orders").Delete,
		client.Autocrud("default", "orders").ReadWithRelated,
	} {
		_, err := call(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsNoParameters(err), err.Error())
	}

	_, err := client.Autocrud("default", "orders").Create(ctx, models.ParameterSet{})
	assert.True(t, errors.IsNoParameters(err), "an empty parameter set is no parameters")
}

func TestGeneratedModules(t *testing.T) {
	m, _ := startManager(t, ordersSchema+"CREATE TABLE notes (body TEXT);")

	byName := map[string]*models.AutocrudModule{}
	for _, module := range m.Engine().Modules() {
		byName[module.ContextName] = module
	}

	create := byName["default_autocrud_orders_create"]
	require.NotNil(t, create)
	assert.Equal(t, "autocrud/orders/create", create.RestPath)
	assert.Equal(t, []string{"customer"}, create.NamedParameterNames())
	assert.Equal(t, []string{"id"}, models.ColumnNames(create.ResultsetMetadata))
	assert.True(t, create.CanModifyData)

	read := byName["default_autocrud_orders_read"]
	require.NotNil(t, read)
	assert.False(t, read.CanModifyData)
	assert.Equal(t, []string{"id"}, read.NamedParameterNames())

	update := byName["default_autocrud_order_items_update"]
	require.NotNil(t, update)
	assert.Equal(t, []string{"order_id", "item_id", "quantity"}, update.NamedParameterNames())
	assert.Equal(t, []string{"quantity"}, models.ColumnNames(update.WorkOnTheseColumns))

	related := byName["default_autocrud_orders_readWithRelated"]
	require.NotNil(t, related)
	last := related.ResultsetMetadata[len(related.ResultsetMetadata)-1]
	assert.Equal(t, "order_items", last.Name)
	assert.Equal(t, models.TypeNested, last.Type)
	assert.Contains(t, models.ColumnNames(last.Nested), "items")

	// items has a column with a space, it is addressed by its normalized name
	items := byName["default_autocrud_items_create"]
	require.NotNil(t, items)
	assert.Equal(t, []string{"id", "item_name"}, items.NamedParameterNames())

	// a table without a key gets read and create, never a blind update or delete
	assert.NotNil(t, byName["default_autocrud_notes_read"])
	assert.NotNil(t, byName["default_autocrud_notes_create"])
	assert.Nil(t, byName["default_autocrud_notes_update"])
	assert.Nil(t, byName["default_autocrud_notes_delete"])
	assert.Nil(t, byName["default_autocrud_notes_readWithRelated"])
}

func TestNormalizedColumnNames(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, ordersSchema)
	items := services.NewClient(m, services.AllowAll).Autocrud("default", "items")

	_, err := items.Create(ctx, models.ParameterSet{"id": 7, "item_name": "widget", "unknown": "ignored"})
	require.NoError(t, err)

	rows, err := items.Read(ctx, models.ParameterSet{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, []models.Row{{"id": int64(7), "item_name": "widget"}}, rows.Rows())
}
