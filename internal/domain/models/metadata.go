package models

// TypeName is the normalized type of a column, shared by every engine.
type TypeName string

const (
	TypeString  TypeName = "string"
	TypeNumber  TypeName = "number"
	TypeBoolean TypeName = "boolean"
	TypeNull    TypeName = "null"
	// TypeNested marks a column whose value is a list of rows.
	TypeNested TypeName = "nested"
)

// Column describes one column of a table or result set.
type Column struct {
	// Name is the normalized identifier used for parameters and results.
	Name string `json:"name"`
	// SQLName is the physical name when it differs from Name.
	SQLName string   `json:"sqlName,omitempty"`
	Type    TypeName `json:"type"`
	Nested  []Column `json:"nested,omitempty"`
}

// Physical returns the name to use in SQL text.
func (c Column) Physical() string {
	if c.SQLName != "" {
		return c.SQLName
	}
	return c.Name
}

// ColumnNames lists the normalized names of columns, in order.
func ColumnNames(columns []Column) []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name)
	}
	return names
}

// Reference is a foreign key, columns correspond positionally.
type Reference struct {
	FromSchema  string   `json:"fromSchema"`
	FromTable   string   `json:"fromTable"`
	FromColumns []string `json:"fromColumns"`
	ToSchema    string   `json:"toSchema"`
	ToTable     string   `json:"toTable"`
	ToColumns   []string `json:"toColumns"`
}

// From is the qualified name of the table holding the columns.
func (r Reference) From() string {
	return QualifiedName(r.FromSchema, r.FromTable)
}

// To is the qualified name of the referenced table.
func (r Reference) To() string {
	return QualifiedName(r.ToSchema, r.ToTable)
}

// Reversed swaps the from and to sides.
func (r Reference) Reversed() Reference {
	return Reference{
		FromSchema:  r.ToSchema,
		FromTable:   r.ToTable,
		FromColumns: r.ToColumns,
		ToSchema:    r.FromSchema,
		ToTable:     r.FromTable,
		ToColumns:   r.FromColumns,
	}
}

// RelatedData is a resolved join between a table and one of its neighbours.
// ToTable is a catalog key, not a pointer.
type RelatedData struct {
	JoinColumns        []Column `json:"joinColumns"`
	ToTable            string   `json:"toTable"`
	ToTableJoinColumns []Column `json:"toTableJoinColumns"`
}

// Table is introspected table metadata, enriched by the graph builder.
type Table struct {
	Schema         string        `json:"schema"`
	Name           string        `json:"name"`
	Columns        []Column      `json:"columns"`
	AutoColumns    []Column      `json:"autoColumns"`
	Keys           []Column      `json:"keys"`
	References     []Reference   `json:"references"`
	BackReferences []Reference   `json:"backReferences"`
	RelatedData    []RelatedData `json:"relatedData"`
}

// QualifiedName returns the catalog key of the table.
func (t *Table) QualifiedName() string {
	return QualifiedName(t.Schema, t.Name)
}

// ColumnByPhysical finds a column by the name the database uses for it.
func (t *Table) ColumnByPhysical(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Physical() == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsKey reports whether the named column is part of the primary key.
func (t *Table) IsKey(name string) bool {
	for _, k := range t.Keys {
		if k.Name == name {
			return true
		}
	}
	return false
}

// IsAuto reports whether the named column is generated by the database.
func (t *Table) IsAuto(name string) bool {
	for _, k := range t.AutoColumns {
		if k.Name == name {
			return true
		}
	}
	return false
}

// NonKeys are the columns outside the primary key.
func (t *Table) NonKeys() []Column {
	cols := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !t.IsKey(c.Name) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Writable are the columns a create may supply.
func (t *Table) Writable() []Column {
	cols := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !t.IsAuto(c.Name) {
			cols = append(cols, c)
		}
	}
	return cols
}

// QualifiedName joins schema and name, or returns name alone without a schema.
func QualifiedName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}
