package services

import (
	"context"
	"fmt"

	"github.com/EmbraceSQL/embracesql/internal/config"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
	"github.com/EmbraceSQL/embracesql/pkg/expression"
)

// RuleCompiler turns declarative authorization rules into before handlers.
type RuleCompiler struct {
	engine *expression.Engine
}

// NewRuleCompiler creates a compiler with its own expression cache.
func NewRuleCompiler() *RuleCompiler {
	return &RuleCompiler{engine: expression.NewEngine()}
}

// Compile checks a rule and returns the handler that applies it. When the
// rule's condition holds the handler appends the rule's grant, otherwise it
// leaves the grants alone.
func (c *RuleCompiler) Compile(rule config.AuthorizationRule) (Handler, error) {
	grant := models.GrantType(rule.Grant)
	if grant != models.GrantAllow && grant != models.GrantDeny {
		return nil, errors.NewModuleGenerationError(rulePath(rule),
			fmt.Errorf("grant must be %q or %q, got %q", models.GrantAllow, models.GrantDeny, rule.Grant))
	}
	when := rule.When
	if when == "" {
		when = "true"
	}
	if err := c.engine.ValidateBool(when, authorizationEnv(&HandlerContext{Context: &models.Context{}, Module: &models.AutocrudModule{}})); err != nil {
		return nil, errors.NewModuleGenerationError(rulePath(rule), err)
	}

	return func(_ context.Context, hc *HandlerContext) error {
		matched, err := c.engine.EvaluateBool(when, authorizationEnv(hc))
		if err != nil {
			return fmt.Errorf("authorization rule %q: %w", when, err)
		}
		if !matched {
			return nil
		}
		if grant == models.GrantAllow {
			hc.Allow(rule.Message)
		} else {
			hc.Deny(rule.Message)
		}
		return nil
	}, nil
}

// authorizationEnv is what a rule condition can see. Every value keeps the
// same type whatever the invocation, compiled programs depend on it.
func authorizationEnv(hc *HandlerContext) map[string]any {
	token := hc.Token
	if token == nil {
		token = map[string]any{}
	}
	headers := hc.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return map[string]any{
		"token":         token,
		"authenticated": len(hc.Token) > 0,
		"headers":       headers,
		"module": map[string]any{
			"database":      hc.Module.Database,
			"restPath":      hc.Module.RestPath,
			"contextName":   hc.Module.ContextName,
			"verb":          string(hc.Module.Verb),
			"canModifyData": hc.Module.CanModifyData,
		},
	}
}

func rulePath(rule config.AuthorizationRule) string {
	if rule.Path == "" {
		return "authorization"
	}
	return "authorization/" + rule.Path
}
