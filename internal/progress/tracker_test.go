package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type testEnv struct {
	db             *gorm.DB
	log            *logger.Logger
	ebookRepo      repos.EbookRepo
	collectionRepo repos.AudioCollectionRepo
	examRepo       repos.ExamRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(domain.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &testEnv{
		db:             db,
		log:            log,
		ebookRepo:      repos.NewEbookRepo(db, log),
		collectionRepo: repos.NewAudioCollectionRepo(db, log),
		examRepo:       repos.NewExamRepo(db, log),
	}
}

func (e *testEnv) dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (e *testEnv) newCollection(t *testing.T) *domain.AudioCollection {
	t.Helper()
	col := &domain.AudioCollection{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Title:       "test collection",
		Status:      domain.StatusProcessing,
		AudioMethod: domain.AudioMethodTTS,
	}
	if _, err := e.collectionRepo.Create(e.dbc(), []*domain.AudioCollection{col}); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return col
}

func TestSetProgressMonotonic(t *testing.T) {
	env := newTestEnv(t)
	col := env.newCollection(t)
	tr := NewTracker(AudioCollectionTarget(env.collectionRepo, col.ID), env.log)

	if err := tr.SetProgress(env.dbc(), 40, "Generating section 2"); err != nil {
		t.Fatalf("set progress: %v", err)
	}
	if err := tr.SetProgress(env.dbc(), 25, "stale write"); err != nil {
		t.Fatalf("set progress: %v", err)
	}

	got, err := env.collectionRepo.GetByID(env.dbc(), col.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Progress != 40 {
		t.Fatalf("progress went backwards: %d", got.Progress)
	}
	if got.ProcessingStatus != "stale write" {
		t.Fatalf("message should still be last-write-wins: %s", got.ProcessingStatus)
	}
}

func TestSetProgressClampsAt100(t *testing.T) {
	env := newTestEnv(t)
	col := env.newCollection(t)
	tr := NewTracker(AudioCollectionTarget(env.collectionRepo, col.ID), env.log)

	if err := tr.SetProgress(env.dbc(), 250, "done-ish"); err != nil {
		t.Fatalf("set progress: %v", err)
	}
	got, _ := env.collectionRepo.GetByID(env.dbc(), col.ID)
	if got.Progress != 100 {
		t.Fatalf("expected clamp at 100, got %d", got.Progress)
	}
}

func TestAppendLogCap(t *testing.T) {
	env := newTestEnv(t)
	col := env.newCollection(t)
	tr := NewTracker(AudioCollectionTarget(env.collectionRepo, col.ID), env.log)

	for i := 0; i < 130; i++ {
		if err := tr.AppendLog(env.dbc(), fmt.Sprintf("entry %d", i), "info"); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, _ := env.collectionRepo.GetByID(env.dbc(), col.ID)
	var details domain.ProcessingDetails
	if err := json.Unmarshal(got.ProcessingDetails, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if len(details.Log) != 100 {
		t.Fatalf("expected log capped at 100, got %d", len(details.Log))
	}
	if details.Log[0].Message != "entry 30" {
		t.Fatalf("expected oldest retained entry to be 30, got %s", details.Log[0].Message)
	}
	if details.Log[99].Message != "entry 129" {
		t.Fatalf("expected newest entry retained, got %s", details.Log[99].Message)
	}
}

func TestMarkErrorAndComplete(t *testing.T) {
	env := newTestEnv(t)
	col := env.newCollection(t)
	tr := NewTracker(AudioCollectionTarget(env.collectionRepo, col.ID), env.log)

	if err := tr.MarkError(env.dbc(), "synthesis exploded"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	got, _ := env.collectionRepo.GetByID(env.dbc(), col.ID)
	if got.Status != domain.StatusError || got.Error != "synthesis exploded" {
		t.Fatalf("unexpected error state: %+v", got)
	}

	if err := tr.MarkComplete(env.dbc(), map[string]any{"sections": 5}); err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	got, _ = env.collectionRepo.GetByID(env.dbc(), col.ID)
	if got.Status != domain.StatusComplete || got.Progress != 100 || got.Error != "" {
		t.Fatalf("unexpected complete state: %+v", got)
	}
}

func TestSweepFlipsOnlyStaleProcessing(t *testing.T) {
	env := newTestEnv(t)
	dbc := env.dbc()

	stale := env.newCollection(t)
	fresh := env.newCollection(t)

	ex := &domain.Exam{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		EbookID:     uuid.New(),
		Status:      domain.StatusProcessing,
	}
	if _, err := env.examRepo.Create(dbc, []*domain.Exam{ex}); err != nil {
		t.Fatalf("create exam: %v", err)
	}

	old := time.Now().Add(-61 * time.Minute)
	if err := env.collectionRepo.UpdateFields(dbc, stale.ID, map[string]interface{}{"updated_at": old}); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	tenAgo := time.Now().Add(-10 * time.Minute)
	if err := env.examRepo.UpdateFields(dbc, ex.ID, map[string]interface{}{"updated_at": tenAgo}); err != nil {
		t.Fatalf("backdate exam: %v", err)
	}

	sweeper := NewSweeper(env.ebookRepo, env.collectionRepo, env.examRepo, DefaultStallThreshold, env.log)
	n, err := sweeper.SweepOnce(dbc)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stalled record, got %d", n)
	}

	gotStale, _ := env.collectionRepo.GetByID(dbc, stale.ID)
	if gotStale.Status != domain.StatusError {
		t.Fatalf("stale collection not flipped: %s", gotStale.Status)
	}
	gotFresh, _ := env.collectionRepo.GetByID(dbc, fresh.ID)
	if gotFresh.Status != domain.StatusProcessing {
		t.Fatalf("fresh collection should be untouched: %s", gotFresh.Status)
	}
	gotExam, _ := env.examRepo.GetByID(dbc, ex.ID)
	if gotExam.Status != domain.StatusProcessing {
		t.Fatalf("10-minute-old exam should be untouched: %s", gotExam.Status)
	}
}
