package models

import "sort"

// Catalog is the table arena of one database, keyed by qualified name.
// Once built it is only read, a refresh builds a new one.
type Catalog struct {
	tables map[string]*Table
	order  []string
}

// NewCatalog indexes tables by qualified name. Later duplicates replace
// earlier ones.
func NewCatalog(tables []*Table) *Catalog {
	c := &Catalog{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		key := t.QualifiedName()
		if _, exists := c.tables[key]; !exists {
			c.order = append(c.order, key)
		}
		c.tables[key] = t
	}
	sort.Strings(c.order)
	return c
}

// Table resolves a catalog key.
func (c *Catalog) Table(key string) (*Table, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.tables[key]
	return t, ok
}

// Tables returns every table ordered by qualified name.
func (c *Catalog) Tables() []*Table {
	if c == nil {
		return nil
	}
	tables := make([]*Table, 0, len(c.order))
	for _, key := range c.order {
		tables = append(tables, c.tables[key])
	}
	return tables
}

// Len is the number of tables.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Schemas groups tables as schema -> table name -> table.
func (c *Catalog) Schemas() map[string]map[string]*Table {
	schemas := make(map[string]map[string]*Table)
	for _, t := range c.Tables() {
		if schemas[t.Schema] == nil {
			schemas[t.Schema] = make(map[string]*Table)
		}
		schemas[t.Schema][t.Name] = t
	}
	return schemas
}
