package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Records reads the first sheet of an Excel workbook as records keyed by the
// header row. Header names are lowercased and trimmed, spaces become
// underscores. Rows with no non-empty cell are skipped.
func Records(content []byte) ([]map[string]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
	}

	var out []map[string]string
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		empty := true
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				empty = false
			}
			rec[header[i]] = cell
		}
		if !empty {
			out = append(out, rec)
		}
	}
	return out, nil
}
