package domain

// Record-level lifecycle shared by Ebook, AudioCollection and Exam.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Job-level lifecycle for JobRun rows.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobCanceled  = "canceled"
)

// Section / content-title hierarchy tags.
const (
	TitleTypeHead = "head"
	TitleTypeSub  = "sub"
)

// Audio generation methods.
const (
	AudioMethodTTS   = "tts"
	AudioMethodGPT4o = "gpt4o"
)
