package tabular

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func loadEngine(t *testing.T, csv string) *Engine {
	t.Helper()
	engine := NewEngine("")
	if _, err := engine.Initialize(context.Background(), []byte(csv)); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestInitializeLoadsCSVAndInfersSchema(t *testing.T) {
	engine := NewEngine("")
	defer func() { _ = engine.Close() }()

	dataset, err := engine.Initialize(context.Background(), []byte("Product Name,Unit Price\nWidget,19.99\nGadget,5\n"))
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if dataset.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", dataset.RowCount)
	}
	if dataset.Columns[0].Name != "product_name" || dataset.Columns[0].Type != ColumnText {
		t.Fatalf("columns[0] = %+v", dataset.Columns[0])
	}
	if dataset.Columns[1].Name != "unit_price" || dataset.Columns[1].Type != ColumnNumeric {
		t.Fatalf("columns[1] = %+v", dataset.Columns[1])
	}
	if got := engine.Schema(); got != "product_name (TEXT), unit_price (NUMERIC)" {
		t.Fatalf("Schema() = %q", got)
	}
}

func TestInitializeRejectsEmptyDatasetWithoutTouchingState(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\n")

	_, err := engine.Initialize(context.Background(), []byte("name,amount\n"))
	if !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("Initialize() error = %v, want ErrEmptyDataset", err)
	}

	result := engine.Query(context.Background(), "SELECT COUNT(*) AS c FROM excel_data")
	if !result.Success {
		t.Fatalf("Query() failed after rejected re-initialize: %s", result.Error)
	}
}

func TestInitializeReplacesPreviousDataset(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\nbob,20\n")

	if _, err := engine.Initialize(context.Background(), []byte("city,population\ngraz,291007\n")); err != nil {
		t.Fatalf("re-Initialize() error = %v", err)
	}

	if got := engine.Schema(); got != "city (TEXT), population (NUMERIC)" {
		t.Fatalf("Schema() = %q", got)
	}
	result := engine.Query(context.Background(), "SELECT name FROM excel_data")
	if result.Success {
		t.Fatalf("query against replaced schema succeeded: %+v", result)
	}
}

func TestInitializeLoadsHeadersCollidingWithSuffixedNames(t *testing.T) {
	engine := loadEngine(t, "Price 2,Price,Price\n1,2,3\n")

	if got := engine.Schema(); got != "price_2 (NUMERIC), price (NUMERIC), price_3 (NUMERIC)" {
		t.Fatalf("Schema() = %q", got)
	}
	result := engine.Query(context.Background(), "SELECT price, price_2, price_3 FROM excel_data;")
	if !result.Success {
		t.Fatalf("Query() failed: %s", result.Error)
	}
}

func TestQueryReturnsRowsAsMaps(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\nbob,20\no'brien,5\n")

	result := engine.Query(context.Background(), "SELECT name, amount FROM excel_data ORDER BY amount DESC;")
	if !result.Success {
		t.Fatalf("Query() failed: %s", result.Error)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(result.Rows))
	}
	if result.Rows[0]["name"] != "bob" {
		t.Fatalf("rows[0] = %#v", result.Rows[0])
	}
	if result.Rows[2]["name"] != "o'brien" {
		t.Fatalf("rows[2] = %#v", result.Rows[2])
	}
	if result.Columns[0] != "name" || result.Columns[1] != "amount" {
		t.Fatalf("columns = %v", result.Columns)
	}
}

func TestQueryRejectsWrites(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\n")

	for _, queryText := range []string{
		"DROP TABLE excel_data",
		"DELETE FROM excel_data",
		"UPDATE excel_data SET amount = 0",
		"INSERT INTO excel_data VALUES ('x', 1)",
		"SELECT 1; DROP TABLE excel_data",
	} {
		result := engine.Query(context.Background(), queryText)
		if result.Success {
			t.Fatalf("Query(%q) succeeded, want rejection", queryText)
		}
	}

	result := engine.Query(context.Background(), "SELECT COUNT(*) AS c FROM excel_data")
	if !result.Success {
		t.Fatalf("table damaged by rejected query: %s", result.Error)
	}
}

func TestQueryRejectsUnknownTables(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\n")

	result := engine.Query(context.Background(), "SELECT * FROM users")
	if result.Success {
		t.Fatalf("query against unknown table succeeded")
	}
	if !strings.Contains(result.Error, "excel_data") {
		t.Fatalf("error = %q, want mention of the dataset table", result.Error)
	}
}

func TestQueryReportsExecutionErrorsInsideResult(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\n")

	result := engine.Query(context.Background(), "SELECT missing_column FROM excel_data")
	if result.Success {
		t.Fatalf("query with unknown column succeeded")
	}
	if result.Error == "" {
		t.Fatalf("error text is empty")
	}
	if result.Query != "SELECT missing_column FROM excel_data" {
		t.Fatalf("Query echo = %q", result.Query)
	}
}

func TestQueryWithoutDataset(t *testing.T) {
	engine := NewEngine("")

	result := engine.Query(context.Background(), "SELECT 1")
	if result.Success {
		t.Fatalf("query without dataset succeeded")
	}
}

func TestQuerySupportsCTEs(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\nbob,20\n")

	result := engine.Query(context.Background(), "WITH big AS (SELECT * FROM excel_data WHERE amount > 15) SELECT COUNT(*) AS c FROM big")
	if !result.Success {
		t.Fatalf("CTE query failed: %s", result.Error)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
}

func TestSnapshotReturnsAllRows(t *testing.T) {
	engine := loadEngine(t, "name,amount\nalice,10\nbob,20\n")

	rows, err := engine.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
}
