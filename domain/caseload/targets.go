package caseload

import (
	"sort"
)

// Targets maps a department to its weekly case target. The AllKey entry, when
// present, is the hospital-wide weekly target.
type Targets map[string]float64

// Departments returns the departments with a target, AllKey excluded, in lexical order.
func (t Targets) Departments() []string {
	out := make([]string, 0, len(t))
	for dept := range t {
		if dept != AllKey {
			out = append(out, dept)
		}
	}
	sort.Strings(out)
	return out
}

// Hospital returns the hospital-wide weekly target: the AllKey entry or the
// sum of the department targets.
func (t Targets) Hospital() float64 {
	if v, ok := t[AllKey]; ok {
		return v
	}
	total := 0.0
	for dept, v := range t {
		if dept != AllKey {
			total += v
		}
	}
	return total
}
