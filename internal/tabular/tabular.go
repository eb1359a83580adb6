package tabular

import "errors"

// DefaultTableName is the fixed relational identifier the single dataset
// table is created under.
const DefaultTableName = "excel_data"

type ColumnType string

const (
	ColumnNumeric ColumnType = "NUMERIC"
	ColumnText    ColumnType = "TEXT"
)

// Column describes one dataset column. Name is the normalized relational
// identifier derived from SourceHeader; both are fixed at ingestion time.
type Column struct {
	SourceHeader string     `json:"source_header"`
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
}

// Dataset summarizes one successful ingestion.
type Dataset struct {
	RowCount int      `json:"row_count"`
	Columns  []Column `json:"columns"`
}

// QueryResult is the envelope query execution resolves to. Execution
// failures are data, not raised errors, so a caller can feed the error text
// back to the model or a human.
type QueryResult struct {
	Success bool             `json:"success"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Error   string           `json:"error,omitempty"`
	Query   string           `json:"query"`
}

// ErrEmptyDataset reports an uploaded buffer that produced zero data rows.
var ErrEmptyDataset = errors.New("dataset contains no data rows")
