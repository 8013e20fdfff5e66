package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"caseflow/internal"
	"caseflow/internal/errors"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	config Config
	logger *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(config Config, logger *internal.Logger) *DataReader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{config: config, logger: logger.With("excel")}
}

// ReadData reads the configured file
func (r *DataReader) ReadData() (*ExcelData, error) {
	f, err := os.Open(r.config.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(r.config.FilePath)
		}
		return nil, errors.Wrapf(err, "open %s", r.config.FilePath)
	}
	defer f.Close()
	return r.Read(f, FileType(r.config.FilePath))
}

// Read parses an uploaded workbook or CSV stream of the given type ("xlsx" or "csv").
func (r *DataReader) Read(in io.Reader, fileType string) (*ExcelData, error) {
	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch fileType {
	case "csv":
		rows, err = readCSV(in)
	case "xlsx":
		rows, err = r.readWorkbook(in)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported file type: %s", fileType))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.InvalidInput("file must have a header row and at least one data row")
	}

	data := processRows(rows)
	r.logger.Debug("%s read in %.2fms (%d columns, %d rows)",
		strings.ToUpper(fileType), float64(time.Since(start).Nanoseconds())/1e6, len(data.Headers), len(data.Rows))
	return data, nil
}

// readWorkbook returns raw cell values so dates arrive as serial numbers
// rather than in whatever display format the sheet uses.
func (r *DataReader) readWorkbook(in io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to open Excel file")
	}
	defer f.Close()

	sheet := r.config.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), fmt.Sprintf("failed to read sheet %q", sheet))
	}
	return rows, nil
}

// readCSV accepts UTF-8 (with or without BOM) and falls back to Shift_JIS,
// the usual encoding of hospital system exports.
func readCSV(in io.Reader) ([][]string, error) {
	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV file")
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var src io.Reader = bytes.NewReader(raw)
	if !utf8.Valid(raw) {
		src = transform.NewReader(src, japanese.ShiftJIS.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to parse CSV file")
	}
	return rows, nil
}

// processRows converts raw string rows into ExcelData format
func processRows(rows [][]string) *ExcelData {
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}

	data := &ExcelData{Headers: headers}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		rowData := make(RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		data.Rows = append(data.Rows, rowData)
		data.Lines = append(data.Lines, i+1)
	}
	return data
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// FindColumn returns the first header matching one of the aliases.
func (d *ExcelData) FindColumn(aliases []string) (string, bool) {
	for _, alias := range aliases {
		for _, header := range d.Headers {
			if strings.EqualFold(strings.TrimSpace(header), alias) {
				return header, true
			}
		}
	}
	return "", false
}
