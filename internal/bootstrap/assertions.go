package bootstrap

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// AssertionViolation is one problem found in an introspected catalog.
type AssertionViolation struct {
	Category    string // e.g. "NoPrimaryKey", "ColumnCollision"
	Severity    string
	Database    string
	Object      string
	Description string
}

// AssertionResult collects every violation of a run.
type AssertionResult struct {
	Violations []AssertionViolation
	Passed     bool
}

func (r *AssertionResult) add(v AssertionViolation) {
	r.Violations = append(r.Violations, v)
}

// Errors counts violations with error severity.
func (r *AssertionResult) Errors() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			n++
		}
	}
	return n
}

// RunAssertions checks catalogs, keyed by database name, for shapes the
// generator handles poorly. Violations are logged. With strictMode any
// error severity violation fails the run.
func RunAssertions(catalogs map[string]*models.Catalog, logger *zap.SugaredLogger, strictMode bool) (*AssertionResult, error) {
	result := &AssertionResult{Violations: []AssertionViolation{}, Passed: true}

	names := make([]string, 0, len(catalogs))
	for name := range catalogs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		catalog := catalogs[name]
		assertPrimaryKeys(name, catalog, result)
		assertColumnNames(name, catalog, result)
		assertReferencesResolve(name, catalog, result)
		assertContextNamesUnique(name, catalog, result)
	}

	if len(result.Violations) == 0 {
		logger.Debugw("catalog assertions passed", "databases", len(names))
		return result, nil
	}

	result.Passed = false
	for _, v := range result.Violations {
		logger.Warnw("catalog assertion", "category", v.Category, "severity", v.Severity,
			"database", v.Database, "object", v.Object, "description", v.Description)
	}

	if strictMode && result.Errors() > 0 {
		return result, fmt.Errorf("catalog assertions failed in strict mode: %d error(s)", result.Errors())
	}
	return result, nil
}

// Without keys there is nothing to address a single row by.
func assertPrimaryKeys(database string, catalog *models.Catalog, result *AssertionResult) {
	for _, t := range catalog.Tables() {
		if len(t.Keys) == 0 {
			result.add(AssertionViolation{
				Category:    "NoPrimaryKey",
				Severity:    SeverityWarning,
				Database:    database,
				Object:      t.QualifiedName(),
				Description: "no primary key, update and delete are not generated",
			})
		}
	}
}

// Two physical columns normalizing to one name would shadow each other in
// parameters and results.
func assertColumnNames(database string, catalog *models.Catalog, result *AssertionResult) {
	for _, t := range catalog.Tables() {
		seen := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			if other, ok := seen[c.Name]; ok {
				result.add(AssertionViolation{
					Category:    "ColumnCollision",
					Severity:    SeverityError,
					Database:    database,
					Object:      t.QualifiedName(),
					Description: fmt.Sprintf("columns %q and %q are both named %s", other, c.Physical(), c.Name),
				})
				continue
			}
			seen[c.Name] = c.Physical()
		}
	}
}

func assertReferencesResolve(database string, catalog *models.Catalog, result *AssertionResult) {
	for _, t := range catalog.Tables() {
		for _, ref := range t.References {
			if _, ok := catalog.Table(ref.To()); ok {
				continue
			}
			result.add(AssertionViolation{
				Category:    "DanglingReference",
				Severity:    SeverityWarning,
				Database:    database,
				Object:      t.QualifiedName(),
				Description: fmt.Sprintf("references %s which is not in the catalog", ref.To()),
			})
		}
	}
}

// Context names flatten schema and table, so main.a_b and a.b can collide.
func assertContextNamesUnique(database string, catalog *models.Catalog, result *AssertionResult) {
	seen := make(map[string]string)
	for _, t := range catalog.Tables() {
		name := models.ContextName(database, models.TableRestPath(t))
		if other, ok := seen[name]; ok {
			result.add(AssertionViolation{
				Category:    "ContextNameCollision",
				Severity:    SeverityError,
				Database:    database,
				Object:      t.QualifiedName(),
				Description: fmt.Sprintf("modules of %s and %s share the name %s", other, t.QualifiedName(), name),
			})
			continue
		}
		seen[name] = t.QualifiedName()
	}
}

// Catalogs gathers the current catalog of every open database.
func Catalogs(manager *services.EngineManager) map[string]*models.Catalog {
	names := manager.Databases()
	catalogs := make(map[string]*models.Catalog, len(names))
	for _, name := range names {
		if db, ok := manager.Database(name); ok {
			catalogs[name] = db.Catalog()
		}
	}
	return catalogs
}
