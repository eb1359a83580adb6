package tabular

import (
	"strings"
	"testing"
)

func TestDeriveColumnsNormalizesHeaders(t *testing.T) {
	headers := []string{"Product Name", "Unit Price", "2024 Sales", "", "Qty!!"}
	first := []string{"Widget", "19.99", "120", "x", "3"}

	columns := deriveColumns(headers, first)

	wantNames := []string{"product_name", "unit_price", "c2024_sales", "column_4", "qty"}
	wantTypes := []ColumnType{ColumnText, ColumnNumeric, ColumnNumeric, ColumnText, ColumnNumeric}
	if len(columns) != len(wantNames) {
		t.Fatalf("columns = %d, want %d", len(columns), len(wantNames))
	}
	for i, column := range columns {
		if column.Name != wantNames[i] {
			t.Fatalf("column[%d].Name = %q, want %q", i, column.Name, wantNames[i])
		}
		if column.Type != wantTypes[i] {
			t.Fatalf("column[%d].Type = %q, want %q", i, column.Type, wantTypes[i])
		}
	}
}

func TestDeriveColumnsSuffixesCollidingNames(t *testing.T) {
	headers := []string{"Price", "price", "PRICE "}
	first := []string{"1", "2", "3"}

	columns := deriveColumns(headers, first)

	want := []string{"price", "price_2", "price_3"}
	for i, column := range columns {
		if column.Name != want[i] {
			t.Fatalf("column[%d].Name = %q, want %q", i, column.Name, want[i])
		}
	}
}

func TestDeriveColumnsSkipsClaimedSuffixedNames(t *testing.T) {
	headers := []string{"Price 2", "Price", "Price"}
	first := []string{"1", "2", "3"}

	columns := deriveColumns(headers, first)

	want := []string{"price_2", "price", "price_3"}
	names := map[string]bool{}
	for i, column := range columns {
		if column.Name != want[i] {
			t.Fatalf("column[%d].Name = %q, want %q", i, column.Name, want[i])
		}
		if names[column.Name] {
			t.Fatalf("duplicate column name %q", column.Name)
		}
		names[column.Name] = true
	}
}

func TestDeriveColumnsInfersFromFirstRowOnly(t *testing.T) {
	columns := deriveColumns([]string{"code"}, []string{"007"})
	if columns[0].Type != ColumnNumeric {
		t.Fatalf("type = %q, want %q", columns[0].Type, ColumnNumeric)
	}

	columns = deriveColumns([]string{"code"}, []string{"A7"})
	if columns[0].Type != ColumnText {
		t.Fatalf("type = %q, want %q", columns[0].Type, ColumnText)
	}
}

func TestParseTableReadsCSV(t *testing.T) {
	buffer := []byte("name,amount\nalice,10\nbob,20\n")

	headers, rows, err := parseTable(buffer)
	if err != nil {
		t.Fatalf("parseTable() error = %v", err)
	}
	if len(headers) != 2 || headers[0] != "name" {
		t.Fatalf("headers = %v", headers)
	}
	if len(rows) != 2 || rows[1][1] != "20" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestParseTableWidensHeadersToLongestRow(t *testing.T) {
	buffer := []byte("a,b\n1,2,3\n")

	headers, rows, err := parseTable(buffer)
	if err != nil {
		t.Fatalf("parseTable() error = %v", err)
	}
	if len(headers) != 3 || headers[2] != "" {
		t.Fatalf("headers = %v", headers)
	}
	if len(rows[0]) != 3 {
		t.Fatalf("rows[0] = %v", rows[0])
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	cases := map[string]string{
		"Total Revenue":  "total_revenue",
		"  spaced\tout ": "spaced_out",
		"Unit-Price($)":  "unitprice",
		"9lives":         "c9lives",
	}
	for input, want := range cases {
		if got := normalizeIdentifier(input); got != want {
			t.Fatalf("normalizeIdentifier(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestIsNumericLiteral(t *testing.T) {
	for _, value := range []string{"12", "-3.5", "1e3", "0"} {
		if !isNumericLiteral(value) {
			t.Fatalf("isNumericLiteral(%q) = false", value)
		}
	}
	for _, value := range []string{"", "abc", "12x", strings.Repeat("9", 400) + "e"} {
		if isNumericLiteral(value) {
			t.Fatalf("isNumericLiteral(%q) = true", value)
		}
	}
}
