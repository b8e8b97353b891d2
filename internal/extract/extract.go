// Package extract reads a tabular STTM sheet and derives the metadata the
// mapping policy validates against.
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"sttmforge/internal/logging"
)

// Metadata describes the structure of an STTM sheet.
type Metadata struct {
	TargetColumns        []string `json:"target_columns,omitempty"`
	SourceTables         []string `json:"source_tables,omitempty"`
	TargetColumnHeader   string   `json:"target_column_col,omitempty"`
	SourceTableHeader    string   `json:"source_table_col,omitempty"`
	TransformationHeader string   `json:"transformation_col,omitempty"`
	HasTransformations   bool     `json:"has_transformations"`
	TotalRows            int      `json:"total_rows"`
	TotalColumns         int      `json:"total_columns"`
	Columns              []string `json:"columns"`
	HasData              bool     `json:"has_data"`
}

// ErrEmptySheet is returned when the input has no header row.
var ErrEmptySheet = errors.New("sheet has no header row")

// FromCSV drops empty rows and columns from a CSV sheet, re-encodes it and
// derives Metadata from the remaining cells.
func FromCSV(r io.Reader) (string, Metadata, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return "", Metadata{}, fmt.Errorf("failed to read csv: %w", err)
	}

	records = dropEmptyRows(records)
	if len(records) == 0 {
		return "", Metadata{}, ErrEmptySheet
	}
	records = dropEmptyColumns(records)

	header := records[0]
	rows := records[1:]

	meta := Metadata{
		TotalRows:    len(rows),
		TotalColumns: len(header),
		Columns:      append([]string(nil), header...),
		HasData:      len(rows) > 0,
	}

	for idx, col := range header {
		lower := strings.ToLower(col)
		switch {
		case strings.Contains(lower, "target") && strings.Contains(lower, "column"):
			meta.TargetColumnHeader = col
			meta.TargetColumns = uniqueValues(rows, idx)
		case strings.Contains(lower, "source") && strings.Contains(lower, "table"):
			meta.SourceTableHeader = col
			meta.SourceTables = uniqueValues(rows, idx)
		case strings.Contains(lower, "transformation"):
			meta.TransformationHeader = col
			meta.HasTransformations = len(uniqueValues(rows, idx)) > 0
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return "", Metadata{}, fmt.Errorf("failed to write csv: %w", err)
	}

	logging.ExtractDebug("sheet: %d rows, %d columns, %d target columns, %d source tables",
		meta.TotalRows, meta.TotalColumns, len(meta.TargetColumns), len(meta.SourceTables))
	return buf.String(), meta, nil
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func dropEmptyRows(records [][]string) [][]string {
	out := records[:0]
	for _, row := range records {
		for i := range row {
			if cell(row, i) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// dropEmptyColumns removes columns with no value in any data row. A header
// alone does not keep a column; a sheet with no data rows is left as is.
func dropEmptyColumns(records [][]string) [][]string {
	data := records[1:]
	if len(data) == 0 {
		return records
	}

	width := 0
	for _, row := range records {
		if len(row) > width {
			width = len(row)
		}
	}

	var keep []int
	for i := 0; i < width; i++ {
		for _, row := range data {
			if cell(row, i) != "" {
				keep = append(keep, i)
				break
			}
		}
	}

	out := make([][]string, len(records))
	for r, row := range records {
		out[r] = make([]string, len(keep))
		for c, i := range keep {
			if i < len(row) {
				out[r][c] = row[i]
			}
		}
	}
	return out
}

// uniqueValues returns the distinct non-empty cells of a column in first
// appearance order.
func uniqueValues(rows [][]string, idx int) []string {
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		v := cell(row, idx)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Hints summarizes the sheet structure for the generation prompt.
func (m Metadata) Hints() []string {
	var hints []string
	if len(m.TargetColumns) > 0 {
		hints = append(hints, fmt.Sprintf("Found %d target columns", len(m.TargetColumns)))
	}
	if len(m.SourceTables) > 0 {
		tables := m.SourceTables
		if len(tables) > 5 {
			tables = tables[:5]
		}
		hints = append(hints, "Found source tables: "+strings.Join(tables, ", "))
	}
	return hints
}
