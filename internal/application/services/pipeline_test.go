package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/config"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
)

func allow(message string) services.Handler {
	return func(_ context.Context, hc *services.HandlerContext) error {
		hc.Allow(message)
		return nil
	}
}

func deny(message string) services.Handler {
	return func(_ context.Context, hc *services.HandlerContext) error {
		hc.Deny(message)
		return nil
	}
}

func TestDefaultDeny(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, thingsSchema)
	things := services.NewClient(m, nil).Autocrud("default", "things")

	_, err := things.Read(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))
	assert.Equal(t, 401, errors.GetHTTPStatus(err))
}

func TestLastGrantWins(t *testing.T) {
	ctx := context.Background()
	m, handlers := startManager(t, thingsSchema)
	things := services.NewClient(m, nil).Autocrud("default", "things")

	handlers.Register("", services.StageBefore, allow("everyone"))
	require.NoError(t, m.Reload(ctx))
	_, err := things.Read(ctx)
	require.NoError(t, err)

	handlers.Register("default/autocrud/things", services.StageBefore, deny("not things"))
	require.NoError(t, m.Reload(ctx))
	_, err = things.Read(ctx)
	require.Error(t, err)
	assert.EqualError(t, err, "Unauthorized: not things")

	handlers.Register("default/autocrud/things/read", services.StageBefore, allow("but reading is fine"))
	require.NoError(t, m.Reload(ctx))
	_, err = things.Read(ctx)
	require.NoError(t, err)
	_, err = things.Create(ctx, models.ParameterSet{"id": 1})
	assert.True(t, errors.IsUnauthorized(err))
}

func TestAuthorizationRules(t *testing.T) {
	ctx := context.Background()
	m, _ := startManager(t, thingsSchema,
		config.AuthorizationRule{Path: "default", When: "authenticated", Grant: "allow", Message: "signed in"},
		config.AuthorizationRule{Path: "default", When: `module.canModifyData && !HAS(token.roles, "writer")`, Grant: "deny", Message: "read only"},
		config.AuthorizationRule{Path: "default", When: "this is not an expression (", Grant: "allow"},
		config.AuthorizationRule{Path: "default", Grant: "maybe"},
	)

	invoke := func(verb string, token map[string]any, params models.Parameters) error {
		c := models.NewContext(params)
		c.Token = token
		return m.Invoke(ctx, models.ContextName("default", "autocrud/things/"+verb), c)
	}

	err := invoke("read", nil, models.NoParameters())
	assert.True(t, errors.IsUnauthorized(err), "anonymous")

	reader := map[string]any{"sub": "ada", "roles": []any{"reader"}}
	require.NoError(t, invoke("read", reader, models.NoParameters()))
	err = invoke("create", reader, models.Single(models.ParameterSet{"id": 1}))
	assert.EqualError(t, err, "Unauthorized: read only")

	writer := map[string]any{"sub": "grace", "roles": []any{"reader", "writer"}}
	require.NoError(t, invoke("create", writer, models.Single(models.ParameterSet{"id": 1})))
}

func TestUnbalancedHandlerIsRolledBack(t *testing.T) {
	ctx := context.Background()
	m, handlers := startManager(t, thingsSchema)
	client := services.NewClient(m, services.AllowAll)

	handlers.Register("default/autocrud/things/create", services.StageBefore,
		func(ctx context.Context, hc *services.HandlerContext) error {
			return hc.Transactions.Begin(ctx)
		})
	require.NoError(t, m.Reload(ctx))

	_, err := client.Autocrud("default", "things").Create(ctx, models.ParameterSet{"id": 1, "name": "lost"})
	require.NoError(t, err)
	assert.Equal(t, 0, defaultDB(t, m).Transactions().Depth())

	rows, err := client.Autocrud("default", "things").Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows.Rows())
}

func TestCanceledInvocationReleasesDatabase(t *testing.T) {
	m, handlers := startManager(t, thingsSchema)
	client := services.NewClient(m, services.AllowAll)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handlers.Register("default/autocrud/things/create", services.StageAfter,
		func(_ context.Context, _ *services.HandlerContext) error {
			// the caller hangs up after the row is written
			cancel()
			return context.Canceled
		})
	require.NoError(t, m.Reload(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := client.Autocrud("default", "things").Create(ctx, models.ParameterSet{"id": 1, "name": "abandoned"})
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatalf("invocation did not return, depth=%d", defaultDB(t, m).Transactions().Depth())
	}
	assert.Equal(t, 0, defaultDB(t, m).Transactions().Depth())

	rows, err := client.Autocrud("default", "things").Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows.Rows())
}

func TestAfterHandlerFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	m, handlers := startManager(t, thingsSchema)
	client := services.NewClient(m, services.AllowAll)

	var (
		seenResults models.Results
		seenError   error
	)
	handlers.Register("default/autocrud/things/create", services.StageAfter,
		func(_ context.Context, hc *services.HandlerContext) error {
			seenResults = hc.Results
			return assert.AnError
		})
	handlers.Register("default", services.StageAfterError,
		func(_ context.Context, hc *services.HandlerContext) error {
			seenError = hc.Error
			return nil
		})
	require.NoError(t, m.Reload(ctx))

	_, err := client.Autocrud("default", "things").Create(ctx, models.ParameterSet{"id": 1, "name": "gone"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, seenError, assert.AnError)
	assert.Equal(t, models.Row{"id": int64(1)}, seenResults.Single())

	rows, err := client.Autocrud("default", "things").Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows.Rows())
}

func TestBeforeHandlerCanRewriteParameters(t *testing.T) {
	ctx := context.Background()
	m, handlers := startManager(t, thingsSchema)
	client := services.NewClient(m, services.AllowAll)

	handlers.Register("default/autocrud/things/create", services.StageBefore,
		func(_ context.Context, hc *services.HandlerContext) error {
			hc.Parameters.ApplyToAll("name", "stamped")
			return nil
		})
	require.NoError(t, m.Reload(ctx))

	_, err := client.Autocrud("default", "things").Create(ctx,
		models.ParameterSet{"id": 1, "name": "a"},
		models.ParameterSet{"id": 2, "name": "b"},
	)
	require.NoError(t, err)

	rows, err := client.Autocrud("default", "things").Read(ctx)
	require.NoError(t, err)
	for _, row := range rows.Rows() {
		assert.Equal(t, "stamped", row["name"])
	}
}

func TestInvokeUnknownModule(t *testing.T) {
	m, _ := startManager(t, thingsSchema)
	err := m.Invoke(context.Background(), "default_autocrud_nothing_read", models.NewContext(models.NoParameters()))
	assert.True(t, errors.IsNotFound(err))
}

func TestHandlerResolveOrder(t *testing.T) {
	registry := services.NewHandlerRegistry()
	var order []string
	record := func(name string) services.Handler {
		return func(context.Context, *services.HandlerContext) error {
			order = append(order, name)
			return nil
		}
	}
	registry.Register("", services.StageBefore, record("before root"))
	registry.Register("default/autocrud/things/read", services.StageBefore, record("before module"))
	registry.Register("default", services.StageBefore, record("before database"))
	registry.Register("", services.StageAfter, record("after root"))
	registry.Register("default/autocrud/things/read", services.StageAfter, record("after module"))
	registry.Register("default/autocrud/other/read", services.StageAfter, record("unrelated"))

	module := &models.AutocrudModule{Database: "default", RestPath: "autocrud/things/read"}
	resolved := registry.Resolve(module)
	for _, h := range append(resolved.Before, resolved.After...) {
		require.NoError(t, h(context.Background(), nil))
	}
	assert.Equal(t, []string{"before root", "before database", "before module", "after module", "after root"}, order)
	assert.Empty(t, resolved.AfterError)
}
