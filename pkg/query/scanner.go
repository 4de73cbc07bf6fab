package query

import (
	"github.com/jmoiron/sqlx"
)

// ScanRows scans SQL rows into a slice of column maps. Text columns come back
// from some drivers as []byte, they are returned as string.
func ScanRows(rows *sqlx.Rows) ([]map[string]any, error) {
	results := make([]map[string]any, 0)
	for rows.Next() {
		record := make(map[string]any)
		if err := rows.MapScan(record); err != nil {
			return nil, err
		}

		for col, val := range record {
			if b, ok := val.([]byte); ok {
				record[col] = string(b)
			}
		}

		results = append(results, record)
	}

	return results, rows.Err()
}
