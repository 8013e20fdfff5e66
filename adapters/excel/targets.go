package excel

import (
	"fmt"
	"io"
	"os"
	"strings"

	"caseflow/adapters/coercer"
	"caseflow/domain/caseload"
	"caseflow/internal/errors"
)

// hospitalLabels are department cells that denote the hospital-wide target.
var hospitalLabels = []string{"全体", "病院全体", "合計", "all", "hospital", "total"}

// LoadTargets reads weekly department targets from a CSV or workbook file.
func LoadTargets(path string) (caseload.Targets, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadTargets(f, FileType(path))
}

// ReadTargets parses a target table. Rows with a blank department or an
// unreadable target are skipped; repeated departments are summed.
func ReadTargets(in io.Reader, fileType string) (caseload.Targets, error) {
	data, err := NewDataReader(Config{}, nil).Read(in, fileType)
	if err != nil {
		return nil, err
	}

	deptCol, ok := data.FindColumn(TargetDepartmentAliases)
	if !ok {
		return nil, errors.InvalidInput(fmt.Sprintf("no department column found in targets (expected one of %s)", strings.Join(TargetDepartmentAliases, ", ")))
	}
	valueCol, ok := data.FindColumn(TargetValueAliases)
	if !ok {
		return nil, errors.InvalidInput(fmt.Sprintf("no target column found (expected one of %s)", strings.Join(TargetValueAliases, ", ")))
	}

	c := coercer.New()
	targets := caseload.Targets{}
	for _, row := range data.Rows {
		dept := c.Text(row[deptCol])
		if dept == "" {
			continue
		}
		value, ok := c.Number(row[valueCol])
		if !ok || value < 0 {
			continue
		}
		if isHospitalLabel(dept) {
			dept = caseload.AllKey
		}
		targets[dept] += value
	}
	if len(targets) == 0 {
		return nil, errors.InvalidInput("target file contains no usable rows")
	}
	return targets, nil
}

func isHospitalLabel(s string) bool {
	for _, label := range hospitalLabels {
		if strings.EqualFold(s, label) {
			return true
		}
	}
	return strings.EqualFold(s, caseload.AllKey)
}
