package excel

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"caseflow/domain/caseload"
	"caseflow/internal"
	"caseflow/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestReadCSVMapsHeaderAliases(t *testing.T) {
	csv := "\xef\xbb\xbf手術実施日,実施診療科,実施術者,手術時間,麻酔種別\n" +
		"2024/01/10,整形外科,山田,95,全身麻酔\n" +
		",,,,\n" +
		"2024/01/11,外科,\"佐藤\n鈴木\",120分,脊椎麻酔\n"
	path := writeFile(t, "cases.csv", []byte(csv))

	records, err := NewDataReader(Config{FilePath: path}, internal.Discard()).LoadCases()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 2, records[0].Row)
	assert.Equal(t, "2024/01/10", records[0].Date)
	assert.Equal(t, "整形外科", records[0].Department)
	assert.Equal(t, "山田", records[0].Surgeon)
	assert.Equal(t, "95", records[0].Duration)
	assert.Equal(t, "全身麻酔", records[0].ProcedureType)

	// The blank line is skipped but line numbering follows the file.
	assert.Equal(t, 4, records[1].Row)
	assert.Equal(t, "佐藤\n鈴木", records[1].Surgeon)
}

func TestReadCSVShiftJIS(t *testing.T) {
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, japanese.ShiftJIS.NewEncoder())
	_, err := w.Write([]byte("手術実施日,実施診療科,実施術者,手術時間\n2024-01-10,眼科,田中,30\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := NewDataReader(Config{}, internal.Discard()).Read(&buf, "csv")
	require.NoError(t, err)
	records, err := ToRecords(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "眼科", records[0].Department)
	assert.Equal(t, "田中", records[0].Surgeon)
}

func TestReadWorkbookRawValues(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"date", "department", "surgeon", "in_room", "out_room"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{45301, "Cardiology", "Smith", "09:00", "10:30"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{45302, "Cardiology", "Jones", "23:30", "00:15"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{45303, "Cardiology", "Jones", "late", "00:15"}))
	path := filepath.Join(t.TempDir(), "cases.xlsx")
	require.NoError(t, f.SaveAs(path))

	records, err := NewDataReader(Config{FilePath: path}, internal.Discard()).LoadCases()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "45301", records[0].Date)
	assert.Equal(t, 90.0, records[0].Duration)
	assert.Equal(t, 45.0, records[1].Duration)
	assert.Equal(t, "late-00:15", records[2].Duration)
}

func TestReadWorkbookNamedSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_, err := f.NewSheet("cases")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("cases", "A1", &[]any{"date", "department", "duration"}))
	require.NoError(t, f.SetSheetRow("cases", "A2", &[]any{"2024-01-10", "Urology", 60}))
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))

	records, err := NewDataReader(Config{FilePath: path, Sheet: "cases"}, internal.Discard()).LoadCases()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Urology", records[0].Department)
	assert.Equal(t, "60", records[0].Duration)

	_, err = NewDataReader(Config{FilePath: path, Sheet: "missing"}, internal.Discard()).ReadData()
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestToRecordsRequiresColumns(t *testing.T) {
	reader := NewDataReader(Config{}, internal.Discard())

	data, err := reader.Read(strings.NewReader("department,duration\nA,10\n"), "csv")
	require.NoError(t, err)
	_, err = ToRecords(data)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	data, err = reader.Read(strings.NewReader("date,department,in_room\n2024-01-10,A,09:00\n"), "csv")
	require.NoError(t, err)
	_, err = ToRecords(data)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestReadRejectsHeaderOnlyAndMissingFile(t *testing.T) {
	_, err := NewDataReader(Config{}, internal.Discard()).Read(strings.NewReader("date,department\n"), "csv")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = NewDataReader(Config{FilePath: filepath.Join(t.TempDir(), "nope.csv")}, internal.Discard()).ReadData()
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestLoadTargetsCSV(t *testing.T) {
	path := writeFile(t, "targets.csv", []byte("実施診療科,目標（週合計）\n整形外科,12\n外科,20.5\n外科,1\n眼科,n/a\n全体,60\n"))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, caseload.Targets{"整形外科": 12, "外科": 21.5, caseload.AllKey: 60}, targets)
	assert.Equal(t, []string{"外科", "整形外科"}, targets.Departments())
	assert.Equal(t, 60.0, targets.Hospital())
}

func TestLoadTargetsWorkbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"department", "target"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Cardiology", 10}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Orthopedics", 5}))
	path := filepath.Join(t.TempDir(), "targets.xlsx")
	require.NoError(t, f.SaveAs(path))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, 15.0, targets.Hospital())
}

func TestLoadTargetsErrors(t *testing.T) {
	_, err := ReadTargets(strings.NewReader("name,target\nA,1\n"), "csv")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = ReadTargets(strings.NewReader("department,target\nA,x\n"), "csv")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "csv", FileType("a/b/Cases.CSV"))
	assert.Equal(t, "xlsx", FileType("cases.xlsx"))
}

func TestWriteCasesReadsBack(t *testing.T) {
	records := []caseload.RawRecord{
		{Date: "2024-01-10", Department: "Cardiology", Surgeon: "Sato\nIto", Duration: 75.5, ProcedureType: "general", Outcome: "completed"},
		{Date: "2024-01-11", Department: "Urology", Surgeon: "Kato", Duration: "n/a"},
	}
	for _, fileType := range []string{"csv", "xlsx"} {
		t.Run(fileType, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCases(&buf, fileType, records))

			data, err := NewDataReader(Config{}, internal.Discard()).Read(&buf, fileType)
			require.NoError(t, err)
			got, err := ToRecords(data)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "2024-01-10", got[0].Date)
			assert.Equal(t, "Sato\nIto", got[0].Surgeon)
			assert.Equal(t, "75.5", got[0].Duration)
			assert.Equal(t, "general", got[0].ProcedureType)
			assert.Equal(t, "completed", got[0].Outcome)
			assert.Equal(t, "n/a", got[1].Duration)
		})
	}

	assert.Error(t, WriteCases(&bytes.Buffer{}, "pdf", records))
}
