// Package roster reads patient rosters exported from practice management
// software.
package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/hashicorp/go-multierror"
	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported roster format, expected .csv or .xlsx")

// Result is the outcome of parsing a roster.
type Result struct {
	Patients []structs.Patient
	// Skipped counts rows that were ignored or could not be parsed.
	Skipped int
}

type column int

const (
	columnCustom column = iota
	columnID
	columnName
	columnPhone
	columnDateOfBirth
)

var knownHeaders = map[string]column{
	"id":            columnID,
	"patient id":    columnID,
	"name":          columnName,
	"customer name": columnName,
	"patient":       columnName,
	"patient name":  columnName,
	"phone":         columnPhone,
	"phone number":  columnPhone,
	"mobile":        columnPhone,
	"telephone":     columnPhone,
	"dob":           columnDateOfBirth,
	"date of birth": columnDateOfBirth,
	"birthday":      columnDateOfBirth,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ").Replace(h)

	return strings.Join(strings.Fields(h), " ")
}

// Parse reads a roster from data. The format is selected by the extension
// of filename. Local phone numbers are parsed for country.
//
// Rows that cannot be parsed are skipped and reported in the returned
// error. Result is nil only if the file itself could not be read.
func Parse(filename string, data []byte, country string) (*Result, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(data)
	case ".xlsx":
		rows, err = readXLSX(data)
	default:
		return nil, ErrUnsupportedFormat
	}

	if err != nil {
		return nil, err
	}

	return parseRows(rows, country)
}

func readCSV(data []byte) ([][]string, error) {
	// strip a UTF-8 byte order mark written by spreadsheet applications
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook does not contain any sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return rows, nil
}

func parseRows(rows [][]string, country string) (*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}

	header := rows[0]
	columns := make([]column, len(header))
	names := make([]string, len(header))

	var hasName, hasPhone bool
	for idx, h := range header {
		names[idx] = strings.TrimSpace(h)
		columns[idx] = knownHeaders[normalizeHeader(h)]

		hasName = hasName || columns[idx] == columnName
		hasPhone = hasPhone || columns[idx] == columnPhone
	}

	if !hasName && !hasPhone {
		return nil, fmt.Errorf("roster header must contain a name or a phone column")
	}

	result := &Result{
		Patients: make([]structs.Patient, 0, len(rows)-1),
	}
	errs := new(multierror.Error)

	for rowIdx, row := range rows[1:] {
		var p structs.Patient

		for idx, value := range row {
			if idx >= len(columns) {
				break
			}

			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}

			switch columns[idx] {
			case columnID:
				p.ID = value
			case columnName:
				p.CustomerName = value
			case columnPhone:
				p.PhoneNumber = value
			case columnDateOfBirth:
				p.DateOfBirth = value
			default:
				if names[idx] == "" {
					continue
				}

				if p.Custom == nil {
					p.Custom = make(map[string]any)
				}
				p.Custom[names[idx]] = value
			}
		}

		if p.CustomerName == "" && p.PhoneNumber == "" {
			result.Skipped++

			continue
		}

		number, err := database.NormalizeNumber(p.PhoneNumber, country)
		if err != nil {
			// header is row 1
			errs.Errors = append(errs.Errors, fmt.Errorf("row %d: %w", rowIdx+2, err))
			result.Skipped++

			continue
		}
		p.PhoneNumber = number

		result.Patients = append(result.Patients, p)
	}

	return result, errs.ErrorOrNil()
}
