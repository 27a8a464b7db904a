// Package model defines the core domain models used throughout the application.
package model

// Record is one row from a dataset: an ordered column-to-value mapping plus
// the stable row index assigned at load time.
type Record struct {
	Fields  map[string]string
	Columns []string
	Index   int
}

// NewRecord creates a record preserving column order.
func NewRecord(index int, columns []string, values []string) Record {
	fields := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(values) {
			fields[col] = values[i]
		} else {
			fields[col] = ""
		}
	}
	return Record{
		Index:   index,
		Columns: columns,
		Fields:  fields,
	}
}

// Get returns the value of a column, or empty string if absent.
func (r Record) Get(column string) string {
	return r.Fields[column]
}

// Has reports whether the record carries the column at all.
func (r Record) Has(column string) bool {
	_, ok := r.Fields[column]
	return ok
}
