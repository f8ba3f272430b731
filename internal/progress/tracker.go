package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

const maxLogEntries = 100

// Target abstracts the record a tracker mutates. Ebook, AudioCollection and
// Exam rows all satisfy it through the adapters below.
type Target interface {
	Load(dbc dbctx.Context) (status string, progressPct int, details domain.ProcessingDetails, err error)
	Update(dbc dbctx.Context, updates map[string]interface{}) error
}

// Tracker is the single write path for user-visible pipeline state. Updates
// are last-write-wins; SetProgress never moves backwards within a run.
type Tracker struct {
	log    *logger.Logger
	target Target
}

func NewTracker(target Target, log *logger.Logger) *Tracker {
	return &Tracker{log: log, target: target}
}

func (t *Tracker) SetStatus(dbc dbctx.Context, status string) error {
	_, _, details, err := t.target.Load(dbc)
	if err != nil {
		return err
	}
	now := time.Now()
	details.LastUpdated = &now
	if status == domain.StatusProcessing && details.StartTime == nil {
		details.StartTime = &now
	}
	return t.target.Update(dbc, map[string]interface{}{
		"status":             status,
		"processing_details": mustDetailsJSON(details),
	})
}

func (t *Tracker) SetProgress(dbc dbctx.Context, pct int, message string) error {
	_, current, details, err := t.target.Load(dbc)
	if err != nil {
		return err
	}
	if pct < current {
		pct = current
	}
	if pct > 100 {
		pct = 100
	}
	now := time.Now()
	details.LastUpdated = &now
	details.CurrentStep = message
	return t.target.Update(dbc, map[string]interface{}{
		"progress":           pct,
		"processing_status":  message,
		"processing_details": mustDetailsJSON(details),
	})
}

func (t *Tracker) AppendLog(dbc dbctx.Context, message, level string) error {
	_, _, details, err := t.target.Load(dbc)
	if err != nil {
		return err
	}
	if level == "" {
		level = "info"
	}
	now := time.Now()
	details.LastUpdated = &now
	details.Log = append(details.Log, domain.LogEntry{At: now, Level: level, Message: message})
	if len(details.Log) > maxLogEntries {
		details.Log = details.Log[len(details.Log)-maxLogEntries:]
	}
	return t.target.Update(dbc, map[string]interface{}{
		"processing_details": mustDetailsJSON(details),
	})
}

func (t *Tracker) MarkError(dbc dbctx.Context, message string) error {
	_, _, details, err := t.target.Load(dbc)
	if err != nil {
		return err
	}
	now := time.Now()
	details.LastUpdated = &now
	details.Log = append(details.Log, domain.LogEntry{At: now, Level: "error", Message: message})
	if len(details.Log) > maxLogEntries {
		details.Log = details.Log[len(details.Log)-maxLogEntries:]
	}
	return t.target.Update(dbc, map[string]interface{}{
		"status":             domain.StatusError,
		"processing_status":  message,
		"error":              message,
		"processing_details": mustDetailsJSON(details),
	})
}

func (t *Tracker) MarkComplete(dbc dbctx.Context, summary map[string]any) error {
	_, _, details, err := t.target.Load(dbc)
	if err != nil {
		return err
	}
	now := time.Now()
	details.LastUpdated = &now
	details.CurrentStep = "complete"
	details.EstimatedTimeRemainingSec = 0

	message := "Complete"
	if len(summary) > 0 {
		if b, err := json.Marshal(summary); err == nil {
			details.Log = append(details.Log, domain.LogEntry{
				At: now, Level: "info", Message: "completed: " + string(b),
			})
		}
	}
	if len(details.Log) > maxLogEntries {
		details.Log = details.Log[len(details.Log)-maxLogEntries:]
	}
	return t.target.Update(dbc, map[string]interface{}{
		"status":             domain.StatusComplete,
		"progress":           100,
		"processing_status":  message,
		"error":              "",
		"processing_details": mustDetailsJSON(details),
	})
}

// RecordFailedPages appends page numbers to the failed_pages detail. Pages
// already recorded are not duplicated.
func (t *Tracker) RecordFailedPages(dbc dbctx.Context, pages []int) error {
	if len(pages) == 0 {
		return nil
	}
	_, _, details, err := t.target.Load(dbc)
	if err != nil {
		return err
	}
	seen := make(map[int]struct{}, len(details.FailedPages))
	for _, p := range details.FailedPages {
		seen[p] = struct{}{}
	}
	for _, p := range pages {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		details.FailedPages = append(details.FailedPages, p)
	}
	now := time.Now()
	details.LastUpdated = &now
	return t.target.Update(dbc, map[string]interface{}{
		"processing_details": mustDetailsJSON(details),
	})
}

func (t *Tracker) IncrementRetryCount(dbc dbctx.Context) error {
	_, _, details, err := t.target.Load(dbc)
	if err != nil {
		return err
	}
	now := time.Now()
	details.LastUpdated = &now
	details.RetryCount++
	return t.target.Update(dbc, map[string]interface{}{
		"retry_count":        details.RetryCount,
		"processing_details": mustDetailsJSON(details),
	})
}

func mustDetailsJSON(d domain.ProcessingDetails) datatypes.JSON {
	b, err := json.Marshal(d)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}

func decodeDetails(raw datatypes.JSON) domain.ProcessingDetails {
	var d domain.ProcessingDetails
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &d)
	}
	return d
}

// ---------- targets ----------

type ebookTarget struct {
	repo repos.EbookRepo
	id   uuid.UUID
}

func EbookTarget(repo repos.EbookRepo, id uuid.UUID) Target {
	return &ebookTarget{repo: repo, id: id}
}

func (t *ebookTarget) Load(dbc dbctx.Context) (string, int, domain.ProcessingDetails, error) {
	eb, err := t.repo.GetByID(dbc, t.id)
	if err != nil {
		return "", 0, domain.ProcessingDetails{}, err
	}
	if eb == nil {
		return "", 0, domain.ProcessingDetails{}, fmt.Errorf("ebook %s not found", t.id)
	}
	pct := 0
	if eb.TotalPages > 0 {
		pct = eb.ProcessedPages * 100 / eb.TotalPages
	}
	return eb.Status, pct, decodeDetails(eb.ProcessingDetails), nil
}

func (t *ebookTarget) Update(dbc dbctx.Context, updates map[string]interface{}) error {
	// progress is derived from processed_pages/total_pages on ebooks
	delete(updates, "progress")
	delete(updates, "retry_count")
	return t.repo.UpdateFields(dbc, t.id, updates)
}

type audioCollectionTarget struct {
	repo repos.AudioCollectionRepo
	id   uuid.UUID
}

func AudioCollectionTarget(repo repos.AudioCollectionRepo, id uuid.UUID) Target {
	return &audioCollectionTarget{repo: repo, id: id}
}

func (t *audioCollectionTarget) Load(dbc dbctx.Context) (string, int, domain.ProcessingDetails, error) {
	col, err := t.repo.GetByID(dbc, t.id)
	if err != nil {
		return "", 0, domain.ProcessingDetails{}, err
	}
	if col == nil {
		return "", 0, domain.ProcessingDetails{}, fmt.Errorf("audio collection %s not found", t.id)
	}
	return col.Status, col.Progress, decodeDetails(col.ProcessingDetails), nil
}

func (t *audioCollectionTarget) Update(dbc dbctx.Context, updates map[string]interface{}) error {
	return t.repo.UpdateFields(dbc, t.id, updates)
}

type examTarget struct {
	repo repos.ExamRepo
	id   uuid.UUID
}

func ExamTarget(repo repos.ExamRepo, id uuid.UUID) Target {
	return &examTarget{repo: repo, id: id}
}

func (t *examTarget) Load(dbc dbctx.Context) (string, int, domain.ProcessingDetails, error) {
	ex, err := t.repo.GetByID(dbc, t.id)
	if err != nil {
		return "", 0, domain.ProcessingDetails{}, err
	}
	if ex == nil {
		return "", 0, domain.ProcessingDetails{}, fmt.Errorf("exam %s not found", t.id)
	}
	return ex.Status, ex.Progress, decodeDetails(ex.ProcessingDetails), nil
}

func (t *examTarget) Update(dbc dbctx.Context, updates map[string]interface{}) error {
	return t.repo.UpdateFields(dbc, t.id, updates)
}
