package excel

import (
	"encoding/csv"
	"fmt"
	"io"

	"caseflow/domain/caseload"
	"caseflow/internal/errors"

	"github.com/xuri/excelize/v2"
)

// caseHeaders is the column layout written by WriteCases.
var caseHeaders = []string{"手術実施日", "実施診療科", "実施術者", "手術時間", "麻酔種別", "転帰"}

func caseRow(rec caseload.RawRecord) []string {
	return []string{
		fmt.Sprint(valueOrEmpty(rec.Date)),
		rec.Department,
		rec.Surgeon,
		fmt.Sprint(valueOrEmpty(rec.Duration)),
		rec.ProcedureType,
		rec.Outcome,
	}
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

// WriteCases writes records in the layout the reader expects, as "csv"
// (UTF-8 with BOM) or "xlsx".
func WriteCases(w io.Writer, fileType string, records []caseload.RawRecord) error {
	switch fileType {
	case "csv":
		if _, err := w.Write([]byte("\xef\xbb\xbf")); err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(caseHeaders); err != nil {
			return err
		}
		for _, rec := range records {
			if err := cw.Write(caseRow(rec)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case "xlsx":
		f := excelize.NewFile()
		defer f.Close()
		sheet := f.GetSheetName(0)
		sw, err := f.NewStreamWriter(sheet)
		if err != nil {
			return err
		}
		if err := sw.SetRow("A1", cells(caseHeaders)); err != nil {
			return err
		}
		for i, rec := range records {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := sw.SetRow(cell, cells(caseRow(rec))); err != nil {
				return err
			}
		}
		if err := sw.Flush(); err != nil {
			return err
		}
		_, err = f.WriteTo(w)
		return err
	}
	return errors.InvalidInput(fmt.Sprintf("unsupported file type: %s", fileType))
}

func cells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
