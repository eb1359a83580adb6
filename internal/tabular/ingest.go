package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

// parseTable extracts the header row and data rows from an uploaded buffer.
// Only the first sheet of a workbook is consulted; anything that is not a
// zip-packaged workbook is treated as CSV.
func parseTable(buffer []byte) ([]string, [][]string, error) {
	if len(buffer) == 0 {
		return nil, nil, fmt.Errorf("buffer is empty")
	}
	if bytes.HasPrefix(buffer, []byte("PK")) {
		return parseWorkbook(buffer)
	}
	return parseCSV(buffer)
}

func parseWorkbook(buffer []byte) ([]string, [][]string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(buffer))
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = workbook.Close() }()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return padRows(rows[0], rows[1:]), rows[1:], nil
}

func parseCSV(buffer []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(buffer))
	reader.FieldsPerRecord = -1

	var headers []string
	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if headers == nil {
			headers = record
			continue
		}
		rows = append(rows, record)
	}
	if headers == nil {
		return nil, nil, nil
	}
	return padRows(headers, rows), rows, nil
}

// padRows widens the header to cover the longest data row so trailing
// unnamed columns still get identifiers.
func padRows(headers []string, rows [][]string) []string {
	width := len(headers)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for len(headers) < width {
		headers = append(headers, "")
	}
	return headers
}

// deriveColumns computes the column definitions once, from the header row
// and the first data row only. Later rows are trusted to match.
func deriveColumns(headers []string, firstRow []string) []Column {
	columns := make([]Column, len(headers))
	used := map[string]bool{}

	for i, header := range headers {
		name := normalizeIdentifier(header)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		// Collisions between normalized names get a numeric suffix so both
		// source columns stay addressable. The suffix keeps advancing when a
		// header already claimed the suffixed form.
		if used[name] {
			base := name
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s_%d", base, n)
				if !used[candidate] {
					name = candidate
					break
				}
			}
		}
		used[name] = true

		columnType := ColumnText
		if i < len(firstRow) && isNumericLiteral(firstRow[i]) {
			columnType = ColumnNumeric
		}
		columns[i] = Column{SourceHeader: header, Name: name, Type: columnType}
	}
	return columns
}

func normalizeIdentifier(header string) string {
	lowered := strings.ToLower(strings.TrimSpace(header))
	var builder strings.Builder
	lastUnderscore := false
	for _, r := range lowered {
		switch {
		case unicode.IsSpace(r):
			if !lastUnderscore && builder.Len() > 0 {
				builder.WriteByte('_')
				lastUnderscore = true
			}
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(r)
			lastUnderscore = false
		}
	}
	name := strings.Trim(builder.String(), "_")
	if name == "" {
		return ""
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "c" + name
	}
	return name
}

func isNumericLiteral(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	_, err := strconv.ParseFloat(trimmed, 64)
	return err == nil
}
