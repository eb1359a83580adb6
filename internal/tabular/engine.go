package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tabchat/tabchat/internal/observability"
)

// Engine loads one spreadsheet into an embedded DuckDB instance and executes
// query text against it. One engine owns one dataset session; a second
// Initialize discards the previous store entirely.
type Engine struct {
	mu        sync.Mutex
	tableName string
	db        *sql.DB
	columns   []Column
	rowCount  int
}

func NewEngine(tableName string) *Engine {
	if strings.TrimSpace(tableName) == "" {
		tableName = DefaultTableName
	}
	return &Engine{tableName: tableName}
}

func (e *Engine) TableName() string {
	return e.tableName
}

// Initialize parses the buffer, derives the schema from the first data row,
// and loads every row into a fresh store. Prior state is replaced only on
// success; a failed ingestion leaves the current dataset untouched.
func (e *Engine) Initialize(ctx context.Context, buffer []byte) (Dataset, error) {
	start := time.Now()

	headers, rows, err := parseTable(buffer)
	if err != nil {
		return Dataset{}, err
	}
	if len(rows) == 0 {
		return Dataset{}, ErrEmptyDataset
	}

	columns := deriveColumns(headers, rows[0])

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return Dataset{}, fmt.Errorf("open relational store: %w", err)
	}

	if err := e.loadRows(ctx, db, columns, rows); err != nil {
		_ = db.Close()
		return Dataset{}, err
	}

	e.mu.Lock()
	old := e.db
	e.db = db
	e.columns = columns
	e.rowCount = len(rows)
	e.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	observability.ObserveDatasetIngest(len(rows), time.Since(start))
	return Dataset{RowCount: len(rows), Columns: columns}, nil
}

func (e *Engine) loadRows(ctx context.Context, db *sql.DB, columns []Column, rows [][]string) error {
	definitions := make([]string, len(columns))
	names := make([]string, len(columns))
	for i, column := range columns {
		sqlType := "VARCHAR"
		if column.Type == ColumnNumeric {
			sqlType = "DOUBLE"
		}
		definitions[i] = fmt.Sprintf("%s %s", quoteIdent(column.Name), sqlType)
		names[i] = quoteIdent(column.Name)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(e.tableName), strings.Join(definitions, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	const batchSize = 500
	for offset := 0; offset < len(rows); offset += batchSize {
		end := offset + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		values := make([]string, 0, end-offset)
		for _, row := range rows[offset:end] {
			values = append(values, renderRow(columns, row))
		}
		insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			quoteIdent(e.tableName), strings.Join(names, ", "), strings.Join(values, ", "))
		if _, err := db.ExecContext(ctx, insertSQL); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
	}
	return nil
}

// renderRow serializes one data row. Text values have single quotes doubled;
// numeric values pass unquoted. A non-numeric value in a numeric column is
// passed quoted so the store's own coercion (or rejection) applies.
func renderRow(columns []Column, row []string) string {
	rendered := make([]string, len(columns))
	for i, column := range columns {
		var value string
		if i < len(row) {
			value = row[i]
		}
		trimmed := strings.TrimSpace(value)
		switch {
		case trimmed == "":
			rendered[i] = "NULL"
		case column.Type == ColumnNumeric && isNumericLiteral(trimmed):
			rendered[i] = trimmed
		default:
			rendered[i] = "'" + strings.ReplaceAll(value, "'", "''") + "'"
		}
	}
	return "(" + strings.Join(rendered, ", ") + ")"
}

// Query executes query text against the current dataset. Only a single
// read-only statement referencing the dataset table is accepted; execution
// failures come back inside the result, never as a raised error.
func (e *Engine) Query(ctx context.Context, queryText string) QueryResult {
	e.mu.Lock()
	db := e.db
	e.mu.Unlock()

	result := QueryResult{Query: queryText}
	if db == nil {
		result.Error = "no dataset loaded"
		return result
	}

	sqlText := stripTrailingSemicolons(queryText)
	if sqlText == "" {
		result.Error = "query is required"
		return result
	}
	if !isReadOnlyQuery(sqlText) {
		result.Error = "only read-only SELECT/WITH queries are allowed"
		return result
	}
	if err := e.checkReferencedTables(sqlText); err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	materialized := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			result.Error = err.Error()
			return result
		}
		entry := make(map[string]any, len(columns))
		for i, name := range columns {
			entry[name] = normalizeValue(values[i])
		}
		materialized = append(materialized, entry)
	}
	if err := rows.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	observability.ObserveQueryLatency(time.Since(start))
	result.Success = true
	result.Columns = columns
	result.Rows = materialized
	return result
}

// Schema returns the column name/type list as computed at ingestion, or the
// empty string before any dataset is loaded.
func (e *Engine) Schema() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.columns) == 0 {
		return ""
	}
	parts := make([]string, len(e.columns))
	for i, column := range e.columns {
		parts[i] = fmt.Sprintf("%s (%s)", column.Name, column.Type)
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) Columns() []Column {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Column, len(e.columns))
	copy(out, e.columns)
	return out
}

func (e *Engine) RowCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rowCount
}

// Snapshot returns every row of the current dataset in insertion order.
func (e *Engine) Snapshot(ctx context.Context) ([]map[string]any, error) {
	result := e.Query(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdent(e.tableName)))
	if !result.Success {
		return nil, fmt.Errorf("snapshot dataset: %s", result.Error)
	}
	return result.Rows, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	e.columns = nil
	e.rowCount = 0
	return err
}

var cteNamePattern = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s+as\s*\(`)

// checkReferencedTables walks the tokens after FROM for table identifiers
// and rejects anything other than the dataset table or a CTE the query
// itself defines. This is a guardrail for model-written queries, not a full
// parser; the read-only prefix check already blocks mutation.
func (e *Engine) checkReferencedTables(sqlText string) error {
	lowered := strings.ToLower(sqlText)

	allowed := map[string]bool{strings.ToLower(e.tableName): true}
	for _, match := range cteNamePattern.FindAllStringSubmatch(lowered, -1) {
		allowed[match[1]] = true
	}

	tokens := strings.Fields(lowered)
	for i, token := range tokens {
		if token != "from" && token != "join" || i+1 >= len(tokens) {
			continue
		}
		next := strings.Trim(tokens[i+1], `"(),;`)
		if next == "" || next == "select" || next == "with" {
			continue
		}
		if !allowed[next] {
			return fmt.Errorf("unknown table %q: only table %q exists", next, e.tableName)
		}
	}
	return nil
}

func isReadOnlyQuery(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	if strings.ContainsRune(normalized, ';') {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
