package models

import "time"

// ColumnProfile describes one column of an uploaded dataset. Schemas are
// inferred at upload time and stored as JSON in the datasets table.
type ColumnProfile struct {
	Name      string `json:"name"`
	Dtype     string `json:"dtype"`
	NonNull   int    `json:"non_null"`
	NullCount int    `json:"null_count"`
	Unique    int    `json:"unique"`
}

// Dataset is an uploaded or discovered tabular file. The file at FilePath
// exists on disk while the row exists; deleting the dataset removes both.
type Dataset struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	OriginalFilename string          `json:"original_filename"`
	FilePath         string          `json:"file_path"`
	FileSize         int64           `json:"file_size"`
	Rows             int             `json:"rows"`
	Cols             int             `json:"cols"`
	Columns          []ColumnProfile `json:"columns"`
	CreatedAt        time.Time       `json:"created_at"`
}
