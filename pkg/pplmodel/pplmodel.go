package pplmodel

// Field describes a column of a query result.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is the tabular result of a PPL query execution.
type Result struct {
	Schema   []Field         `json:"schema"`
	DataRows [][]interface{} `json:"datarows"`
	Total    int64           `json:"total"`
	Size     int64           `json:"size"`
}

// Columns returns the schema field names in order.
func (r *Result) Columns() []string {
	cols := make([]string, 0, len(r.Schema))
	for _, f := range r.Schema {
		cols = append(cols, f.Name)
	}
	return cols
}

// Records converts the data rows into one map per row keyed by column name.
// Rows shorter than the schema leave the missing columns unset.
func (r *Result) Records() []map[string]interface{} {
	res := make([]map[string]interface{}, 0, len(r.DataRows))
	for _, row := range r.DataRows {
		rec := make(map[string]interface{}, len(r.Schema))
		for i, f := range r.Schema {
			if i >= len(row) {
				break
			}
			rec[f.Name] = row[i]
		}
		res = append(res, rec)
	}
	return res
}

// Lines returns the number of rows in the result.
func (r *Result) Lines() int64 {
	return int64(len(r.DataRows))
}
