package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one result row, column name to value. Nested related rows are
// stored as []Row under the related table's qualified name.
type Row = map[string]any

// ParameterSet binds named parameters for one execution.
type ParameterSet = map[string]any

// Shape discriminates the parameter and result unions.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeSingle
	ShapeMany
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeMany:
		return "many"
	default:
		return "none"
	}
}

// Parameters is either nothing, a single parameter set, or a batch.
type Parameters struct {
	shape  Shape
	single ParameterSet
	batch  []ParameterSet
}

// NoParameters is the empty case.
func NoParameters() Parameters {
	return Parameters{}
}

// Single wraps one parameter set. An empty set is no parameters at all.
func Single(p ParameterSet) Parameters {
	if len(p) == 0 {
		return Parameters{}
	}
	return Parameters{shape: ShapeSingle, single: p}
}

// Batch wraps parameter sets. An empty batch is no parameters at all.
func Batch(ps ...ParameterSet) Parameters {
	if len(ps) == 0 {
		return Parameters{}
	}
	return Parameters{shape: ShapeMany, batch: ps}
}

func (p Parameters) Shape() Shape {
	return p.shape
}

// Single returns the parameter set of the single case.
func (p Parameters) Single() ParameterSet {
	return p.single
}

// Batch returns the parameter sets of the batch case.
func (p Parameters) Batch() []ParameterSet {
	return p.batch
}

// All returns every parameter set regardless of shape.
func (p Parameters) All() []ParameterSet {
	switch p.shape {
	case ShapeSingle:
		return []ParameterSet{p.single}
	case ShapeMany:
		return p.batch
	default:
		return nil
	}
}

// First returns the single set, or the first of a batch.
func (p Parameters) First() (ParameterSet, bool) {
	all := p.All()
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

// ApplyToAll sets key on every parameter set.
func (p Parameters) ApplyToAll(key string, value any) {
	for _, set := range p.All() {
		if set != nil {
			set[key] = value
		}
	}
}

// MarshalJSON renders null, an object, or an array.
func (p Parameters) MarshalJSON() ([]byte, error) {
	switch p.shape {
	case ShapeSingle:
		return json.Marshal(p.single)
	case ShapeMany:
		return json.Marshal(p.batch)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, an object, or an array of objects.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = NoParameters()
		return nil
	}

	switch trimmed[0] {
	case '{':
		var single ParameterSet
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*p = Single(single)
	case '[':
		var batch []ParameterSet
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return err
		}
		*p = Batch(batch...)
	default:
		return fmt.Errorf("parameters must be an object or an array, got %s", string(trimmed[:1]))
	}
	return nil
}

// Results is either nothing, a single row, or a list of rows.
type Results struct {
	shape  Shape
	single Row
	many   []Row
}

// NoResults is the empty case.
func NoResults() Results {
	return Results{}
}

// SingleResult wraps one row.
func SingleResult(r Row) Results {
	return Results{shape: ShapeSingle, single: r}
}

// ManyResults wraps a list of rows, an empty list is still a list.
func ManyResults(rows []Row) Results {
	if rows == nil {
		rows = []Row{}
	}
	return Results{shape: ShapeMany, many: rows}
}

func (r Results) Shape() Shape {
	return r.shape
}

// Single returns the row of the single case.
func (r Results) Single() Row {
	return r.single
}

// Rows returns every row regardless of shape.
func (r Results) Rows() []Row {
	switch r.shape {
	case ShapeSingle:
		return []Row{r.single}
	case ShapeMany:
		return r.many
	default:
		return nil
	}
}

// First returns the single row, or the first of the list.
func (r Results) First() (Row, bool) {
	rows := r.Rows()
	if len(rows) == 0 {
		return nil, false
	}
	return rows[0], true
}

// MarshalJSON renders null, an object, or an array.
func (r Results) MarshalJSON() ([]byte, error) {
	switch r.shape {
	case ShapeSingle:
		return json.Marshal(r.single)
	case ShapeMany:
		return json.Marshal(r.many)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, an object, or an array of objects.
func (r *Results) UnmarshalJSON(data []byte) error {
	var p Parameters
	if err := p.UnmarshalJSON(data); err != nil {
		return err
	}
	switch p.shape {
	case ShapeSingle:
		*r = SingleResult(p.single)
	case ShapeMany:
		*r = ManyResults(p.batch)
	default:
		trimmed := bytes.TrimSpace(data)
		if bytes.Equal(trimmed, []byte("[]")) {
			*r = ManyResults(nil)
		} else {
			*r = NoResults()
		}
	}
	return nil
}
