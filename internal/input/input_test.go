package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bizintel/internal/model"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "Company Name,Website,Notes\nAcme,https://acme.test,ignored\nBeta Inc,,\n,,\n")

	got, err := ReadCompanies(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Company{
		{Name: "Acme", Website: "https://acme.test"},
		{Name: "Beta Inc"},
	}, got)
}

func TestReadCSVWebsiteOnlyRow(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "name,url\n,https://solo.test\n")

	got, err := ReadCompanies(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://solo.test", got[0].Name)
	assert.Equal(t, "https://solo.test", got[0].Website)
}

func TestReadCSVMissingNameColumn(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "foo,bar\n1,2\n")
	_, err := ReadCompanies(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name column")
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Companies")
	require.NoError(t, err)

	hdr := sheet.AddRow()
	hdr.AddCell().SetString("Company")
	hdr.AddCell().SetString("Domain")

	r1 := sheet.AddRow()
	r1.AddCell().SetString("Acme")
	r1.AddCell().SetString("acme.test")

	r2 := sheet.AddRow()
	r2.AddCell().SetString("Beta")

	path := filepath.Join(t.TempDir(), "companies.xlsx")
	require.NoError(t, file.Save(path))

	got, err := ReadCompanies(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Company{
		{Name: "Acme", Website: "acme.test"},
		{Name: "Beta"},
	}, got)
}

func TestReadUnsupportedExtension(t *testing.T) {
	t.Parallel()
	_, err := ReadCompanies("companies.txt")
	require.Error(t, err)
}
