// Package input parses bibliographic record files.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dkoval/paperfetch/internal/model"
)

// ErrNoColumns means the header row names neither a doi nor a title column.
var ErrNoColumns = errors.New("input: header must include a doi or title column")

// ReadFile parses a CSV of records. The header row maps columns by name:
// doi, title, authors (semicolon-separated) and year are recognized, any
// other column is ignored. Rows with neither a DOI nor a title are skipped
// with their line numbers collected into the returned warnings.
func ReadFile(path string) ([]model.Record, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses records from r. See ReadFile.
func Read(r io.Reader) ([]model.Record, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	cols := columnIndex(header)
	if cols.doi < 0 && cols.title < 0 {
		return nil, nil, ErrNoColumns
	}

	var records []model.Record
	var warnings []string
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", line, err)
		}

		rec := rowRecord(row, cols)
		if model.NormalizeDOI(rec.DOI) == "" && strings.TrimSpace(rec.Title) == "" {
			warnings = append(warnings, fmt.Sprintf("line %d: no doi or title, skipped", line))
			continue
		}
		records = append(records, rec)
	}

	return records, warnings, nil
}

type columns struct {
	doi, title, authors, year int
}

func columnIndex(header []string) columns {
	cols := columns{doi: -1, title: -1, authors: -1, year: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "doi":
			cols.doi = i
		case "title":
			cols.title = i
		case "authors", "author":
			cols.authors = i
		case "year":
			cols.year = i
		}
	}
	return cols
}

func rowRecord(row []string, cols columns) model.Record {
	field := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	rec := model.Record{
		DOI:   field(cols.doi),
		Title: field(cols.title),
	}
	if authors := field(cols.authors); authors != "" {
		for _, a := range strings.Split(authors, ";") {
			if a = strings.TrimSpace(a); a != "" {
				rec.Authors = append(rec.Authors, a)
			}
		}
	}
	if year := field(cols.year); year != "" {
		if y, err := strconv.Atoi(year); err == nil {
			rec.Year = y
		}
	}
	return rec
}
