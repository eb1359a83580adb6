package tabular

import (
	"context"
	"fmt"

	"github.com/tabchat/tabchat/internal/registry"
)

// DatasetTools builds the tool set bound to one engine instance. The tools
// report domain failures inside the result envelope so a bad query never
// terminates the conversation that issued it.
func DatasetTools(engine *Engine) []registry.Tool {
	return []registry.Tool{
		{
			Name:        "query_dataset",
			Description: "Run a read-only SQL query against the uploaded spreadsheet. The data lives in a single table named " + engine.TableName() + ".",
			Parameters: map[string]any{
				"type":     "object",
				"required": []any{"query"},
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "A single SELECT statement over table " + engine.TableName(),
					},
				},
			},
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				queryText, _ := args["query"].(string)
				result := engine.Query(ctx, queryText)
				if !result.Success {
					return registry.Envelope(false, nil, result.Error), nil
				}
				return registry.Envelope(true, map[string]any{
					"columns": result.Columns,
					"rows":    result.Rows,
				}, ""), nil
			},
		},
		{
			Name:        "describe_dataset",
			Description: "Return the schema of the uploaded spreadsheet: column names, column types, and the row count.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				columns := engine.Columns()
				if len(columns) == 0 {
					return registry.Envelope(false, nil, "no dataset loaded"), nil
				}
				described := make([]map[string]any, len(columns))
				for i, column := range columns {
					described[i] = map[string]any{
						"name":          column.Name,
						"type":          string(column.Type),
						"source_header": column.SourceHeader,
					}
				}
				return registry.Envelope(true, map[string]any{
					"table":     engine.TableName(),
					"columns":   described,
					"row_count": engine.RowCount(),
				}, ""), nil
			},
		},
		{
			Name:        "dataset_statistics",
			Description: "Summarize one column of the uploaded spreadsheet: min, max, average, and non-null count for numeric columns; distinct and non-null counts for text columns.",
			Parameters: map[string]any{
				"type":     "object",
				"required": []any{"column"},
				"properties": map[string]any{
					"column": map[string]any{
						"type":        "string",
						"description": "Name of the column to summarize",
					},
				},
			},
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				name, _ := args["column"].(string)
				column, ok := findColumn(engine.Columns(), name)
				if !ok {
					return registry.Envelope(false, nil, fmt.Sprintf("unknown column %q", name)), nil
				}

				var statsSQL string
				if column.Type == ColumnNumeric {
					statsSQL = fmt.Sprintf(
						"SELECT MIN(%[1]s) AS min, MAX(%[1]s) AS max, AVG(%[1]s) AS avg, COUNT(%[1]s) AS count FROM %[2]s",
						quoteIdent(column.Name), quoteIdent(engine.TableName()))
				} else {
					statsSQL = fmt.Sprintf(
						"SELECT COUNT(DISTINCT %[1]s) AS distinct_count, COUNT(%[1]s) AS count FROM %[2]s",
						quoteIdent(column.Name), quoteIdent(engine.TableName()))
				}

				result := engine.Query(ctx, statsSQL)
				if !result.Success {
					return registry.Envelope(false, nil, result.Error), nil
				}
				statistics := map[string]any{"column": column.Name, "type": string(column.Type)}
				if len(result.Rows) == 1 {
					for key, value := range result.Rows[0] {
						statistics[key] = value
					}
				}
				return registry.Envelope(true, statistics, ""), nil
			},
		},
	}
}

func findColumn(columns []Column, name string) (Column, bool) {
	for _, column := range columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}
