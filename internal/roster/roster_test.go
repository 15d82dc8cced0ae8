package roster

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	data := "\xef\xbb\xbfPatient Name,Mobile,Date_of_Birth,Species\n" +
		"Ana Lopez,0664 1234567,1990-02-03,cat\n" +
		",,,\n" +
		"Ben Meyer,+14155552671,,dog\n"

	res, err := Parse("roster.CSV", []byte(data), "AT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(res.Patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(res.Patients))
	}

	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", res.Skipped)
	}

	ana := res.Patients[0]
	if ana.CustomerName != "Ana Lopez" || ana.PhoneNumber != "+436641234567" || ana.DateOfBirth != "1990-02-03" {
		t.Errorf("unexpected patient %+v", ana)
	}

	if ana.Custom["Species"] != "cat" {
		t.Errorf("expected custom column to be kept, got %v", ana.Custom)
	}

	if res.Patients[1].PhoneNumber != "+14155552671" {
		t.Errorf("unexpected phone number %q", res.Patients[1].PhoneNumber)
	}
}

func TestParseRowErrors(t *testing.T) {
	data := "name,phone\nAna,0664 1234567\nBroken,call me maybe\nCarla,\n"

	res, err := Parse("roster.csv", []byte(data), "AT")
	if res == nil {
		t.Fatalf("expected a result, got error %s", err)
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 1 {
		t.Fatalf("expected a single row error, got %v", err)
	}

	if len(res.Patients) != 2 || res.Skipped != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"ID", "Customer Name", "Telephone", "Notes"},
		{"p-1", "Ana Lopez", "0664 1234567", "prefers mornings"},
		{"p-2", "Ben Meyer", "", ""},
	}

	for idx, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		if err != nil {
			t.Fatal(err)
		}

		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	res, err := Parse("roster.xlsx", buf.Bytes(), "AT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(res.Patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(res.Patients))
	}

	if res.Patients[0].ID != "p-1" || res.Patients[0].Custom["Notes"] != "prefers mornings" {
		t.Errorf("unexpected patient %+v", res.Patients[0])
	}

	if res.Patients[1].PhoneNumber != "" {
		t.Errorf("expected empty phone number, got %q", res.Patients[1].PhoneNumber)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		data     string
	}{
		{"unsupported extension", "roster.pdf", "name\nAna"},
		{"empty", "roster.csv", ""},
		{"no usable header", "roster.csv", "foo,bar\n1,2\n"},
		{"invalid workbook", "roster.xlsx", "not a zip"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := Parse(c.filename, []byte(c.data), "AT")
			if err == nil || res != nil {
				t.Errorf("expected a fatal error, got %v / %v", res, err)
			}
		})
	}

	if _, err := Parse("roster.pdf", nil, "AT"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
