package excel

import (
	"path/filepath"
	"strings"
)

// Config holds configuration for a case data file
type Config struct {
	FilePath string `json:"file_path"`
	// Sheet defaults to the first sheet of the workbook.
	Sheet string `json:"sheet"`
}

// FileType is "csv" for .csv files and "xlsx" otherwise.
func FileType(path string) string {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return "csv"
	}
	return "xlsx"
}
