package excel

// RawRowData represents a row of raw sheet data keyed by header
type RawRowData map[string]string

// ExcelData represents one sheet or CSV file
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
	// Lines holds the 1-based source line of each row, header included in the count.
	Lines []int
}

// Column lookups try each alias in order, after trimming and lower-casing headers.
var (
	DateAliases       = []string{"手術実施日", "実施日", "date", "surgery_date", "operation_date"}
	DepartmentAliases = []string{"実施診療科", "診療科", "department", "dept"}
	SurgeonAliases    = []string{"実施術者", "術者", "surgeon", "operator"}
	DurationAliases   = []string{"手術時間", "所要時間", "duration", "duration_minutes", "minutes"}
	AnesthesiaAliases = []string{"麻酔種別", "anesthesia", "procedure_type"}
	OutcomeAliases    = []string{"転帰", "outcome"}
	InRoomAliases     = []string{"入室時刻", "in_room", "in_room_time"}
	OutRoomAliases    = []string{"退室時刻", "out_room", "out_room_time"}

	TargetDepartmentAliases = []string{"実施診療科", "診療科", "department", "dept"}
	TargetValueAliases      = []string{"目標（週合計）", "目標件数", "目標", "weekly_target", "target"}
)
