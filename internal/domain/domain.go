package domain

// AllModels lists every table for auto-migration.
func AllModels() []any {
	return []any{
		&Ebook{},
		&Section{},
		&ContentTitle{},
		&AudioCollection{},
		&Audio{},
		&Exam{},
		&JobRun{},
	}
}

// PollStatus is the externally observable shape for any running generation,
// consumed directly by client UIs.
type PollStatus struct {
	Status           string `json:"status"`
	Progress         int    `json:"progress"`
	ProcessingStatus string `json:"processing_status"`
	RetryCount       int    `json:"retry_count"`
	Error            string `json:"error,omitempty"`
}
