package services

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/persistence"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
	"github.com/EmbraceSQL/embracesql/pkg/logging"
)

// Pipeline wraps an operation for invocation: handlers, the authorization
// gate and parameter shape handling, all inside one transaction level.
type Pipeline struct {
	op       *Operation
	handlers Handlers
	tm       *persistence.TransactionManager
	logger   *zap.SugaredLogger
}

// NewPipeline creates a pipeline for one operation.
func NewPipeline(op *Operation, handlers Handlers, logger *zap.SugaredLogger) *Pipeline {
	logger = logging.OrNop(logger).With("contextName", op.Module.ContextName)
	return &Pipeline{
		op:       op,
		handlers: handlers,
		tm:       persistence.NewTransactionManager(op.DB, logger),
		logger:   logger,
	}
}

// Module is the descriptor of the wrapped operation.
func (p *Pipeline) Module() *models.AutocrudModule {
	return p.op.Module
}

// Invoke runs before handlers, checks the last grant, executes and runs
// after handlers. On any error the transaction level is rolled back, then
// afterError handlers run and the error is returned as is.
func (p *Pipeline) Invoke(ctx context.Context, c *models.Context) error {
	hc := &HandlerContext{
		Context:      c,
		Module:       p.op.Module,
		Transactions: p.op.DB.Transactions(),
		Logger:       p.logger,
	}

	err := p.tm.WithTransaction(ctx, func(ctx context.Context) error {
		for _, handler := range p.handlers.Before {
			if err := handler(ctx, hc); err != nil {
				return err
			}
		}

		if err := authorize(c); err != nil {
			return err
		}

		results, err := p.execute(ctx, c.Parameters)
		if err != nil {
			return err
		}
		c.Results = results

		for _, handler := range p.handlers.After {
			if err := handler(ctx, hc); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	c.Error = err
	for _, handler := range p.handlers.AfterError {
		if handlerErr := handler(ctx, hc); handlerErr != nil {
			p.logger.Warnw("afterError handler failed", "error", handlerErr, "cause", err)
		}
	}
	return err
}

// authorize lets the invocation through only when the last grant allows.
// No grant at all is a deny.
func authorize(c *models.Context) error {
	last, ok := c.LastGrant()
	switch {
	case !ok:
		return errors.NewUnauthorizedError("")
	case last.Type != models.GrantAllow:
		return errors.NewUnauthorizedError(last.Message)
	default:
		return nil
	}
}

// execute dispatches on the parameter shape. A batch fans out and fans back
// in, in input order, flattened one level.
func (p *Pipeline) execute(ctx context.Context, params models.Parameters) (models.Results, error) {
	switch params.Shape() {
	case models.ShapeSingle:
		rows, err := p.op.One(ctx, params.Single())
		if err != nil {
			return models.NoResults(), err
		}
		if p.op.Singular && len(rows) == 1 {
			return models.SingleResult(rows[0]), nil
		}
		return models.ManyResults(rows), nil
	case models.ShapeMany:
		rows, err := fanOut(ctx, params.Batch(), p.op.One)
		if err != nil {
			return models.NoResults(), err
		}
		return models.ManyResults(rows), nil
	default:
		if p.op.All == nil {
			return models.NoResults(), errors.NewNoParametersError(p.op.Module.ContextName)
		}
		rows, err := p.op.All(ctx)
		if err != nil {
			return models.NoResults(), err
		}
		return models.ManyResults(rows), nil
	}
}

// fanOut runs fn for every parameter set concurrently. A failure does not
// cancel siblings already running, the first error is returned once all
// are done.
func fanOut(ctx context.Context, sets []models.ParameterSet, fn RowFunc) ([]models.Row, error) {
	results := make([][]models.Row, len(sets))
	var g errgroup.Group
	for i, set := range sets {
		g.Go(func() error {
			rows, err := fn(ctx, set)
			results[i] = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flat := make([]models.Row, 0, len(sets))
	for _, rows := range results {
		flat = append(flat, rows...)
	}
	return flat, nil
}
