package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Table is an in-memory parsed list file, independent of the format it
// arrived in. Used by the master list compiler where selected files may be
// spreadsheets rather than delimited text.
type Table struct {
	Header Header
	Rows   []Row
}

// ParseError reports that no supported tabular format matched the input.
type ParseError struct {
	Attempts []string
}

func (e *ParseError) Error() string {
	return "no tabular format matched: " + strings.Join(e.Attempts, "; ")
}

// ParseAny attempts a structured parse of raw file bytes, trying XLSX, then
// legacy XLS, then delimited text. The first successful parse wins; if all
// fail the result is a *ParseError listing each attempt.
func ParseAny(data []byte) (*Table, error) {
	var attempts []string

	t, err := parseXLSX(data)
	if err == nil {
		return t, nil
	}
	attempts = append(attempts, fmt.Sprintf("xlsx: %v", err))

	t, err = parseXLS(data)
	if err == nil {
		return t, nil
	}
	attempts = append(attempts, fmt.Sprintf("xls: %v", err))

	t, err = parseCSV(data)
	if err == nil {
		return t, nil
	}
	attempts = append(attempts, fmt.Sprintf("csv: %v", err))

	return nil, &ParseError{Attempts: attempts}
}

func parseXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return tableFromRecords(records)
}

func parseXLS(data []byte) (*Table, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	records := wb.ReadAllCells(1 << 20)
	return tableFromRecords(records)
}

// utf8BOM is prepended by some Windows tools when exporting delimited text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

func parseCSV(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(stripBOM(data)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return tableFromRecords(records)
}

func tableFromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row")
	}

	header := Header(records[0])
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		empty := true
		for _, v := range rec {
			if strings.TrimSpace(v) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{Header: header, Rows: rows}, nil
}
