package schema

import (
	"fmt"
	"sort"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
)

// BuildReferentialGraph derives BackReferences and RelatedData for every table
// in the catalog from their introspected References. Tables are updated in
// place. It returns one problem per reference that could not be resolved;
// those references are left out of RelatedData.
func BuildReferentialGraph(catalog *models.Catalog) []error {
	tables := catalog.Tables()
	neighbors := adjacency(catalog)

	// A reference from N to T, seen from T. Every node is its own neighbor at
	// most once, so a self reference is counted once and the pass terminates.
	for _, t := range tables {
		t.BackReferences = make([]models.Reference, 0)
		key := t.QualifiedName()
		for _, n := range sortedKeys(neighbors[key]) {
			neighbor, _ := catalog.Table(n)
			for _, ref := range neighbor.References {
				if ref.To() == key {
					t.BackReferences = append(t.BackReferences, ref.Reversed())
				}
			}
		}
	}

	var problems []error
	for _, t := range tables {
		t.RelatedData = make([]models.RelatedData, 0, len(t.References)+len(t.BackReferences))
		all := append(append([]models.Reference{}, t.References...), t.BackReferences...)
		for _, ref := range all {
			related, err := resolve(catalog, t, ref)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			t.RelatedData = append(t.RelatedData, related)
		}
	}
	return problems
}

// adjacency is an undirected graph with one edge per forward reference.
func adjacency(catalog *models.Catalog) map[string]map[string]bool {
	graph := make(map[string]map[string]bool)
	link := func(a, b string) {
		if graph[a] == nil {
			graph[a] = make(map[string]bool)
		}
		graph[a][b] = true
	}
	for _, t := range catalog.Tables() {
		for _, ref := range t.References {
			if _, ok := catalog.Table(ref.To()); !ok {
				continue
			}
			link(ref.From(), ref.To())
			link(ref.To(), ref.From())
		}
	}
	return graph
}

func resolve(catalog *models.Catalog, t *models.Table, ref models.Reference) (models.RelatedData, error) {
	target, ok := catalog.Table(ref.To())
	if !ok {
		return models.RelatedData{}, fmt.Errorf("%s references unknown table %s", t.QualifiedName(), ref.To())
	}
	if len(ref.FromColumns) != len(ref.ToColumns) || len(ref.FromColumns) == 0 {
		return models.RelatedData{}, fmt.Errorf("%s to %s pairs %d columns with %d",
			t.QualifiedName(), ref.To(), len(ref.FromColumns), len(ref.ToColumns))
	}

	related := models.RelatedData{ToTable: target.QualifiedName()}
	for i := range ref.FromColumns {
		from, ok := t.ColumnByPhysical(ref.FromColumns[i])
		if !ok {
			return models.RelatedData{}, fmt.Errorf("%s has no column %s", t.QualifiedName(), ref.FromColumns[i])
		}
		to, ok := target.ColumnByPhysical(ref.ToColumns[i])
		if !ok {
			return models.RelatedData{}, fmt.Errorf("%s has no column %s", target.QualifiedName(), ref.ToColumns[i])
		}
		related.JoinColumns = append(related.JoinColumns, from)
		related.ToTableJoinColumns = append(related.ToTableJoinColumns, to)
	}
	return related, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
