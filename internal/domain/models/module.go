package models

import (
	"path"
	"strings"

	"github.com/EmbraceSQL/embracesql/pkg/utils"
)

// Verb is one generated operation of a table.
type Verb string

const (
	VerbCreate          Verb = "create"
	VerbRead            Verb = "read"
	VerbUpdate          Verb = "update"
	VerbDelete          Verb = "delete"
	VerbReadWithRelated Verb = "readWithRelated"
)

// Verbs lists every verb in generation order.
var Verbs = []Verb{VerbCreate, VerbRead, VerbUpdate, VerbDelete, VerbReadWithRelated}

// AutocrudModule describes a single generated operation, a table verb or a
// SQL module. Modules are built once per engine build and never change
// afterwards.
type AutocrudModule struct {
	Database          string   `json:"database"`
	Table             *Table   `json:"-"`
	Verb              Verb     `json:"verb,omitempty"`
	RestPath          string   `json:"restPath"`
	ContextName       string   `json:"contextName"`
	NamedParameters   []Column `json:"namedParameters"`
	ResultsetMetadata []Column `json:"resultsetMetadata"`
	CanModifyData     bool     `json:"canModifyData"`
	// WorkOnTheseColumns are the columns a statement actually writes.
	WorkOnTheseColumns []Column `json:"workOnTheseColumns,omitempty"`
	// SQL is the statement text of a SQL module, empty for table verbs.
	SQL string `json:"sql,omitempty"`
}

// TableRestPath is the path shared by every verb of a table, it reads like a
// file system: autocrud/schema/table.
func TableRestPath(t *Table) string {
	if t.Schema == "" {
		return path.Join("autocrud", t.Name)
	}
	return path.Join("autocrud", t.Schema, t.Name)
}

// ContextName is the globally unique name of a module.
func ContextName(database, restPath string) string {
	return utils.Identifier(database + "/" + restPath)
}

// HandlerPaths are the path prefixes of restPath from the root ("") down to
// the module itself.
func HandlerPaths(restPath string) []string {
	paths := []string{""}
	segments := strings.Split(restPath, "/")
	for i := range segments {
		paths = append(paths, strings.Join(segments[:i+1], "/"))
	}
	return paths
}

// NamedParameterNames lists parameter names in declaration order.
func (m *AutocrudModule) NamedParameterNames() []string {
	return ColumnNames(m.NamedParameters)
}
