package services

import (
	"context"
	"strings"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
)

// GrantFunc decides on an in-process invocation before it enters the
// pipeline, the way a handler would.
type GrantFunc func(c *models.Context)

// AllowAll is a GrantFunc for trusted in-process callers.
func AllowAll(c *models.Context) {
	c.Allow("in process")
}

// Client invokes modules in process, without HTTP.
type Client struct {
	manager *EngineManager
	grant   GrantFunc
}

// NewClient creates a client. grant may be nil, then every call relies on
// handlers and rules alone.
func NewClient(manager *EngineManager, grant GrantFunc) *Client {
	return &Client{manager: manager, grant: grant}
}

// Autocrud addresses the generated operations of one table. table is a
// qualified name, schema.table or just table.
func (c *Client) Autocrud(database, table string) *TableClient {
	restPath := "autocrud/" + strings.Replace(table, ".", "/", 1)
	return &TableClient{client: c, database: database, restPath: restPath}
}

// TableClient calls the verbs of one table. No parameter sets is a call
// without parameters, one is a single call, more is a batch.
type TableClient struct {
	client   *Client
	database string
	restPath string
}

func (t *TableClient) Create(ctx context.Context, params ...models.ParameterSet) (models.Results, error) {
	return t.invoke(ctx, models.VerbCreate, params)
}

func (t *TableClient) Read(ctx context.Context, params ...models.ParameterSet) (models.Results, error) {
	return t.invoke(ctx, models.VerbRead, params)
}

func (t *TableClient) Update(ctx context.Context, params ...models.ParameterSet) (models.Results, error) {
	return t.invoke(ctx, models.VerbUpdate, params)
}

func (t *TableClient) Delete(ctx context.Context, params ...models.ParameterSet) (models.Results, error) {
	return t.invoke(ctx, models.VerbDelete, params)
}

func (t *TableClient) ReadWithRelated(ctx context.Context, params ...models.ParameterSet) (models.Results, error) {
	return t.invoke(ctx, models.VerbReadWithRelated, params)
}

func (t *TableClient) invoke(ctx context.Context, verb models.Verb, params []models.ParameterSet) (models.Results, error) {
	return t.client.invoke(ctx, models.ContextName(t.database, t.restPath+"/"+string(verb)), params)
}

// SQL runs the SQL module of database served at restPath.
func (c *Client) SQL(ctx context.Context, database, restPath string, params ...models.ParameterSet) (models.Results, error) {
	return c.invoke(ctx, models.ContextName(database, restPath), params)
}

func (c *Client) invoke(ctx context.Context, contextName string, params []models.ParameterSet) (models.Results, error) {
	var parameters models.Parameters
	if len(params) == 1 {
		parameters = models.Single(params[0])
	} else {
		parameters = models.Batch(params...)
	}

	invocation := models.NewContext(parameters)
	if c.grant != nil {
		c.grant(invocation)
	}
	if err := c.manager.Invoke(ctx, contextName, invocation); err != nil {
		return models.NoResults(), err
	}
	return invocation.Results, nil
}
