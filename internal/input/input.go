// Package input reads company lists for batch runs from spreadsheet or CSV
// files.
package input

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bizintel/internal/model"
)

// ReadCompanies loads companies from path, dispatching on extension.
// Supported: .xlsx, .csv.
func ReadCompanies(path string) ([]model.Company, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	case ".csv":
		return readCSV(path)
	default:
		return nil, eris.Errorf("input: unsupported file type %q", filepath.Ext(path))
	}
}

// header column aliases, matched case-insensitively.
var (
	nameAliases    = map[string]bool{"name": true, "company": true, "company name": true, "company_name": true}
	websiteAliases = map[string]bool{"website": true, "url": true, "domain": true, "site": true, "web": true}
)

type columns struct {
	name    int
	website int
}

func detectColumns(header []string) (columns, error) {
	cols := columns{name: -1, website: -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.name < 0 && nameAliases[key]:
			cols.name = i
		case cols.website < 0 && websiteAliases[key]:
			cols.website = i
		}
	}
	if cols.name < 0 {
		return cols, eris.New("input: no name column found (expected one of: name, company, company name)")
	}
	return cols, nil
}

func buildCompany(row []string, cols columns) (model.Company, bool) {
	get := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	c := model.Company{Name: get(cols.name), Website: get(cols.website)}
	if c.Name == "" && c.Website == "" {
		return model.Company{}, false
	}
	// Website-only rows are allowed; the site itself names the company.
	if c.Name == "" {
		c.Name = c.Website
	}
	return c, true
}

func readCSV(path string) ([]model.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "input: read csv header")
	}
	cols, err := detectColumns(header)
	if err != nil {
		return nil, err
	}

	var out []model.Company
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "input: read csv row")
		}
		if c, ok := buildCompany(row, cols); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func readXLSX(path string) ([]model.Company, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open xlsx")
	}
	if len(file.Sheets) == 0 {
		return nil, eris.New("input: xlsx has no sheets")
	}

	sheet := file.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("input: xlsx sheet is empty")
	}

	header := make([]string, 0, len(sheet.Rows[0].Cells))
	for _, cell := range sheet.Rows[0].Cells {
		header = append(header, cell.String())
	}
	cols, err := detectColumns(header)
	if err != nil {
		return nil, err
	}

	var out []model.Company
	for _, row := range sheet.Rows[1:] {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, cell.String())
		}
		if c, ok := buildCompany(cells, cols); ok {
			out = append(out, c)
		}
	}
	return out, nil
}
