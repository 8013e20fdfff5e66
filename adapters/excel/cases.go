package excel

import (
	"fmt"
	"strings"

	"caseflow/adapters/coercer"
	"caseflow/domain/caseload"
	"caseflow/internal/errors"
)

// caseColumns maps the logical case fields onto sheet headers.
type caseColumns struct {
	date, department, surgeon, duration string
	anesthesia, outcome, inRoom, outRoom string
}

func resolveCaseColumns(data *ExcelData) (caseColumns, error) {
	var cols caseColumns
	var ok bool
	if cols.date, ok = data.FindColumn(DateAliases); !ok {
		return cols, errors.InvalidInput(fmt.Sprintf("no date column found (expected one of %s)", strings.Join(DateAliases, ", ")))
	}
	if cols.department, ok = data.FindColumn(DepartmentAliases); !ok {
		return cols, errors.InvalidInput(fmt.Sprintf("no department column found (expected one of %s)", strings.Join(DepartmentAliases, ", ")))
	}
	cols.surgeon, _ = data.FindColumn(SurgeonAliases)
	cols.duration, _ = data.FindColumn(DurationAliases)
	cols.anesthesia, _ = data.FindColumn(AnesthesiaAliases)
	cols.outcome, _ = data.FindColumn(OutcomeAliases)
	cols.inRoom, _ = data.FindColumn(InRoomAliases)
	cols.outRoom, _ = data.FindColumn(OutRoomAliases)

	if cols.duration == "" && (cols.inRoom == "" || cols.outRoom == "") {
		return cols, errors.InvalidInput("no duration column and no in-room/out-room time pair found")
	}
	return cols, nil
}

// ToRecords maps sheet rows onto raw case records. Cell values are passed
// through untyped so the preprocessor owns validation and reject reporting.
// When the sheet has no duration column, duration is derived from the
// in-room and out-room times.
func ToRecords(data *ExcelData) ([]caseload.RawRecord, error) {
	cols, err := resolveCaseColumns(data)
	if err != nil {
		return nil, err
	}

	c := coercer.New()
	records := make([]caseload.RawRecord, 0, len(data.Rows))
	for i, row := range data.Rows {
		rec := caseload.RawRecord{
			Row:        data.Lines[i],
			Date:       row[cols.date],
			Department: row[cols.department],
		}
		if cols.surgeon != "" {
			rec.Surgeon = row[cols.surgeon]
		}
		if cols.anesthesia != "" {
			rec.ProcedureType = row[cols.anesthesia]
		}
		if cols.outcome != "" {
			rec.Outcome = row[cols.outcome]
		}

		if cols.duration != "" && row[cols.duration] != "" {
			rec.Duration = row[cols.duration]
		} else if cols.inRoom != "" && cols.outRoom != "" {
			rec.Duration = roomMinutes(c, row[cols.inRoom], row[cols.outRoom])
		}
		records = append(records, rec)
	}
	return records, nil
}

// roomMinutes returns the elapsed minutes between two clock cells, or the
// raw pair when either side is unreadable.
func roomMinutes(c *coercer.Coercer, in, out string) any {
	start, ok := c.ClockMinutes(in)
	if !ok {
		return in + "-" + out
	}
	end, ok := c.ClockMinutes(out)
	if !ok {
		return in + "-" + out
	}
	return coercer.ElapsedMinutes(start, end)
}

// LoadCases reads the configured file and maps it onto raw case records.
func (r *DataReader) LoadCases() ([]caseload.RawRecord, error) {
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	return ToRecords(data)
}
