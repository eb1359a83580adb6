package tabular

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

type parquetRow struct {
	RowIndex    int64  `parquet:"row_index"`
	PayloadJSON string `parquet:"payload_json"`
}

// EncodeRowsToParquet serializes a dataset snapshot into a parquet buffer.
// Each dataset row becomes one record carrying its insertion index and the
// row rendered as a JSON object.
func EncodeRowsToParquet(rows []map[string]any) (ParquetEncodeResult, error) {
	if len(rows) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("rows are required")
	}

	records := make([]parquetRow, 0, len(rows))
	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("encode row %d: %w", i, err)
		}
		records = append(records, parquetRow{
			RowIndex:    int64(i),
			PayloadJSON: string(payload),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if _, err := writer.Write(records); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(records)),
	}, nil
}
