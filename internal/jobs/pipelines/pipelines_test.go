package pipelines

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

	"github.com/yungbote/fablecast-backend/internal/audiogen"
	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/ingestion/chunkproc"
	"github.com/yungbote/fablecast-backend/internal/ingestion/extractor"
	"github.com/yungbote/fablecast-backend/internal/jobs/runtime"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
	"github.com/yungbote/fablecast-backend/internal/services"
)

type pipelineEnv struct {
	db             *gorm.DB
	log            *logger.Logger
	ebookRepo      repos.EbookRepo
	collectionRepo repos.AudioCollectionRepo
	audioRepo      repos.AudioRepo
	examRepo       repos.ExamRepo
	jobRepo        repos.JobRunRepo
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
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
	return &pipelineEnv{
		db:             db,
		log:            log,
		ebookRepo:      repos.NewEbookRepo(db, log),
		collectionRepo: repos.NewAudioCollectionRepo(db, log),
		audioRepo:      repos.NewAudioRepo(db, log),
		examRepo:       repos.NewExamRepo(db, log),
		jobRepo:        repos.NewJobRunRepo(db, log),
	}
}

func (e *pipelineEnv) dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (e *pipelineEnv) newJob(t *testing.T, jobType, entityType string, entityID uuid.UUID) *runtime.Context {
	t.Helper()
	job := &domain.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    &entityID,
		Status:      domain.JobRunning,
	}
	if _, err := e.jobRepo.Create(e.dbc(), []*domain.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return runtime.NewContext(context.Background(), e.db, job, e.jobRepo, services.NoopNotifier{})
}

func (e *pipelineEnv) newEbook(t *testing.T, status string) *domain.Ebook {
	t.Helper()
	eb := &domain.Ebook{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Title:       "Intro to Tides",
		StorageKey:  "uploads/tides.txt",
		FileExt:     ".txt",
		Status:      status,
	}
	if _, err := e.ebookRepo.Create(e.dbc(), []*domain.Ebook{eb}); err != nil {
		t.Fatalf("create ebook: %v", err)
	}
	return eb
}

func (e *pipelineEnv) addSection(t *testing.T, ebookID uuid.UUID, idx int, content string) {
	t.Helper()
	err := e.ebookRepo.AppendSections(e.dbc(), []*domain.Section{{
		ID:      uuid.New(),
		EbookID: ebookID,
		Index:   idx,
		Title:   fmt.Sprintf("Section %d", idx),
		Content: content,
		Type:    domain.TitleTypeHead,
	}})
	if err != nil {
		t.Fatalf("append section: %v", err)
	}
}

// ---------- fakes ----------

type fakeExtractor struct {
	totalPages int
	calls      []int
	failOn     map[int]error
}

func (f *fakeExtractor) Extract(_ context.Context, _ extractor.ExtractInput, start, batchSize int) (*extractor.BatchResult, error) {
	f.calls = append(f.calls, start)
	if err, ok := f.failOn[start]; ok {
		return nil, err
	}
	if start >= f.totalPages {
		return &extractor.BatchResult{TotalPages: f.totalPages}, nil
	}
	end := start + batchSize
	if end > f.totalPages {
		end = f.totalPages
	}
	return &extractor.BatchResult{
		Text:         fmt.Sprintf("cleaned text for pages %d-%d", start+1, end),
		NewPageCount: end - start,
		TotalPages:   f.totalPages,
		ContentTitles: []domain.ContentTitle{
			{Title: fmt.Sprintf("Chapter %d", start/batchSize+1), Type: domain.TitleTypeHead, Page: start + 1},
		},
		Metrics: extractor.BatchMetrics{Characters: 30, TitlesAdded: 1},
	}, nil
}

type fakeChunker struct {
	calls   int
	failOn  map[int]error
	perCall int
}

func (f *fakeChunker) Process(_ context.Context, _, content string, mode chunkproc.Mode, _ string, _ bool) (*chunkproc.Result, error) {
	f.calls++
	if err, ok := f.failOn[f.calls]; ok {
		return nil, err
	}
	if mode == chunkproc.ModeQuestionSet {
		n := f.perCall
		if n == 0 {
			n = 5
		}
		qs := make([]domain.Question, n)
		for i := range qs {
			qs[i] = domain.Question{
				Question: fmt.Sprintf("Q about %q #%d", content[:10], i),
				Options:  []string{"a", "b", "c", "d"},
				Answer:   "a",
			}
		}
		return &chunkproc.Result{Questions: qs}, nil
	}
	return &chunkproc.Result{Segments: []chunkproc.ScriptSegment{{Voice: "alloy", Text: "narration for " + content[:10]}}}, nil
}

// fakeSynth persists Audio rows like the real synthesizer so resume can skip
// by index.
type fakeSynth struct {
	audioRepo   repos.AudioRepo
	failIndexes map[int]bool
	calls       []int
}

func (f *fakeSynth) SynthesizeSection(dbc dbctx.Context, method string, in audiogen.SectionInput) (*domain.Audio, error) {
	f.calls = append(f.calls, in.Index)
	if f.failIndexes[in.Index] {
		return nil, fmt.Errorf("section %d synthesis failed after 3 attempts: boom", in.Index)
	}
	audio := &domain.Audio{
		ID:           uuid.New(),
		CollectionID: in.CollectionID,
		Index:        in.Index,
		Title:        in.Title,
		URL:          fmt.Sprintf("https://cdn.example.com/audio/%03d.wav", in.Index),
		DurationSec:  12.5,
	}
	if _, err := f.audioRepo.Create(dbc, []*domain.Audio{audio}); err != nil {
		return nil, err
	}
	return audio, nil
}

// ---------- ebook_extract ----------

func TestEbookExtractRunsAllBatches(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusPending)
	fx := &fakeExtractor{totalPages: 7}

	p := NewEbookExtractPipeline(env.ebookRepo, fx, env.log)
	jc := env.newJob(t, domain.JobTypeEbookExtract, domain.EntityEbook, eb.ID)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := env.ebookRepo.GetByID(env.dbc(), eb.ID)
	if got.Status != domain.StatusComplete {
		t.Fatalf("expected complete, got %s (error=%s)", got.Status, got.Error)
	}
	if got.ProcessedPages != 7 || got.TotalPages != 7 {
		t.Fatalf("page counters wrong: %d/%d", got.ProcessedPages, got.TotalPages)
	}
	if len(fx.calls) != 3 || fx.calls[0] != 0 || fx.calls[1] != 3 || fx.calls[2] != 6 {
		t.Fatalf("expected batch starts [0 3 6], got %v", fx.calls)
	}

	sections, _ := env.ebookRepo.GetSections(env.dbc(), eb.ID)
	if len(sections) != 3 {
		t.Fatalf("expected one section per batch, got %d", len(sections))
	}
	titles, _ := env.ebookRepo.GetContentTitles(env.dbc(), eb.ID)
	if len(titles) != 3 {
		t.Fatalf("expected 3 content titles, got %d", len(titles))
	}

	job, _ := env.jobRepo.GetByID(env.dbc(), jc.Job.ID)
	if job.Status != domain.JobSucceeded || job.Progress != 100 {
		t.Fatalf("job not succeeded: %s progress=%d", job.Status, job.Progress)
	}
}

func TestEbookExtractResumeFromProcessedPages(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusProcessing)
	if err := env.ebookRepo.UpdateFields(env.dbc(), eb.ID, map[string]interface{}{
		"processed_pages": 6,
		"total_pages":     7,
	}); err != nil {
		t.Fatalf("seed counters: %v", err)
	}
	fx := &fakeExtractor{totalPages: 7}

	p := NewEbookExtractPipeline(env.ebookRepo, fx, env.log)
	if err := p.Run(env.newJob(t, domain.JobTypeEbookExtract, domain.EntityEbook, eb.ID)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(fx.calls) != 1 || fx.calls[0] != 6 {
		t.Fatalf("expected a single batch starting at 6, got %v", fx.calls)
	}
	got, _ := env.ebookRepo.GetByID(env.dbc(), eb.ID)
	if got.ProcessedPages != 7 || got.Status != domain.StatusComplete {
		t.Fatalf("resume did not finish: pages=%d status=%s", got.ProcessedPages, got.Status)
	}
}

func TestEbookExtractDoubleResumeIsNoop(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusComplete)
	fx := &fakeExtractor{totalPages: 7}

	p := NewEbookExtractPipeline(env.ebookRepo, fx, env.log)
	jc := env.newJob(t, domain.JobTypeEbookExtract, domain.EntityEbook, eb.ID)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(fx.calls) != 0 {
		t.Fatalf("resume on complete ebook must not extract, got %d calls", len(fx.calls))
	}
	job, _ := env.jobRepo.GetByID(env.dbc(), jc.Job.ID)
	if job.Status != domain.JobSucceeded {
		t.Fatalf("expected no-op success, got %s", job.Status)
	}
}

func TestEbookExtractRecordsFailedPagesOnBatchError(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusProcessing)
	if err := env.ebookRepo.UpdateFields(env.dbc(), eb.ID, map[string]interface{}{
		"processed_pages": 3,
		"total_pages":     7,
	}); err != nil {
		t.Fatalf("seed counters: %v", err)
	}
	fx := &fakeExtractor{totalPages: 7, failOn: map[int]error{3: fmt.Errorf("ocr job failed")}}

	p := NewEbookExtractPipeline(env.ebookRepo, fx, env.log)
	jc := env.newJob(t, domain.JobTypeEbookExtract, domain.EntityEbook, eb.ID)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := env.ebookRepo.GetByID(env.dbc(), eb.ID)
	if got.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	var details domain.ProcessingDetails
	if err := json.Unmarshal(got.ProcessingDetails, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	want := []int{4, 5, 6}
	if len(details.FailedPages) != len(want) {
		t.Fatalf("expected failed pages %v, got %v", want, details.FailedPages)
	}
	for i := range want {
		if details.FailedPages[i] != want[i] {
			t.Fatalf("expected failed pages %v, got %v", want, details.FailedPages)
		}
	}

	// The same batch failing again must not duplicate the entries.
	fx2 := &fakeExtractor{totalPages: 7, failOn: map[int]error{3: fmt.Errorf("ocr job failed")}}
	p2 := NewEbookExtractPipeline(env.ebookRepo, fx2, env.log)
	if err := p2.Run(env.newJob(t, domain.JobTypeEbookExtract, domain.EntityEbook, eb.ID)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	got, _ = env.ebookRepo.GetByID(env.dbc(), eb.ID)
	details = domain.ProcessingDetails{}
	if err := json.Unmarshal(got.ProcessingDetails, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if len(details.FailedPages) != len(want) {
		t.Fatalf("failed pages duplicated on repeat failure: %v", details.FailedPages)
	}
}

// ---------- audio_generate ----------

func (e *pipelineEnv) newCollection(t *testing.T, ebookID uuid.UUID, method string) *domain.AudioCollection {
	t.Helper()
	col := &domain.AudioCollection{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		EbookID:     &ebookID,
		Title:       "Tides narrated",
		Status:      domain.StatusPending,
		AudioMethod: method,
	}
	if _, err := e.collectionRepo.Create(e.dbc(), []*domain.AudioCollection{col}); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return col
}

func TestAudioGenerateContinuesPastSectionFailure(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusComplete)
	for i := 0; i < 3; i++ {
		env.addSection(t, eb.ID, i, fmt.Sprintf("section %d content long enough to narrate", i))
	}
	col := env.newCollection(t, eb.ID, domain.AudioMethodTTS)

	synth := &fakeSynth{audioRepo: env.audioRepo, failIndexes: map[int]bool{1: true}}
	p := NewAudioGeneratePipeline(env.ebookRepo, env.collectionRepo, env.audioRepo, &fakeChunker{}, synth, env.log)
	p.sleep = func(time.Duration) {}

	jc := env.newJob(t, domain.JobTypeAudioGenerate, domain.EntityAudioCollection, col.ID)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := env.collectionRepo.GetByID(env.dbc(), col.ID)
	if got.Status != domain.StatusComplete || got.Progress != 100 {
		t.Fatalf("run with a failed section must still complete: %s progress=%d", got.Status, got.Progress)
	}
	audios, _ := env.audioRepo.GetByCollectionID(env.dbc(), col.ID)
	if len(audios) != 2 {
		t.Fatalf("expected 2 audio rows around the gap, got %d", len(audios))
	}
	var details domain.ProcessingDetails
	if err := json.Unmarshal(got.ProcessingDetails, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	foundErr := false
	for _, entry := range details.Log {
		if entry.Level == "error" && strings.Contains(entry.Message, "Section 1") {
			foundErr = true
		}
	}
	if !foundErr {
		t.Fatalf("expected an error log entry for the skipped section, log=%+v", details.Log)
	}
}

func TestAudioGenerateResumeSkipsExistingAudio(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusComplete)
	for i := 0; i < 3; i++ {
		env.addSection(t, eb.ID, i, fmt.Sprintf("section %d content long enough to narrate", i))
	}
	col := env.newCollection(t, eb.ID, domain.AudioMethodTTS)

	existing := &domain.Audio{
		ID:           uuid.New(),
		CollectionID: col.ID,
		Index:        0,
		Title:        "Section 0",
		URL:          "https://cdn.example.com/audio/000.wav",
	}
	if _, err := env.audioRepo.Create(env.dbc(), []*domain.Audio{existing}); err != nil {
		t.Fatalf("seed audio: %v", err)
	}

	synth := &fakeSynth{audioRepo: env.audioRepo}
	p := NewAudioGeneratePipeline(env.ebookRepo, env.collectionRepo, env.audioRepo, &fakeChunker{}, synth, env.log)
	p.sleep = func(time.Duration) {}

	if err := p.Run(env.newJob(t, domain.JobTypeAudioGenerate, domain.EntityAudioCollection, col.ID)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(synth.calls) != 2 || synth.calls[0] != 1 || synth.calls[1] != 2 {
		t.Fatalf("expected synthesis only for sections [1 2], got %v", synth.calls)
	}
	audios, _ := env.audioRepo.GetByCollectionID(env.dbc(), col.ID)
	if len(audios) != 3 {
		t.Fatalf("expected 3 audio rows after resume, got %d", len(audios))
	}
}

func TestAudioGenerateDependencyWaitTimesOut(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusProcessing)
	col := env.newCollection(t, eb.ID, domain.AudioMethodTTS)

	var slept []time.Duration
	p := NewAudioGeneratePipeline(env.ebookRepo, env.collectionRepo, env.audioRepo, &fakeChunker{}, &fakeSynth{audioRepo: env.audioRepo}, env.log)
	p.sleep = func(d time.Duration) { slept = append(slept, d) }

	jc := env.newJob(t, domain.JobTypeAudioGenerate, domain.EntityAudioCollection, col.ID)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d rechecks, slept %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("recheck %d slept %v, want %v", i, slept[i], want[i])
		}
	}

	got, _ := env.collectionRepo.GetByID(env.dbc(), col.ID)
	if got.Status != domain.StatusError || !strings.Contains(got.Error, "timed out") {
		t.Fatalf("expected descriptive timeout error, got status=%s error=%q", got.Status, got.Error)
	}
	job, _ := env.jobRepo.GetByID(env.dbc(), jc.Job.ID)
	if job.Status != domain.JobFailed {
		t.Fatalf("job should be failed, got %s", job.Status)
	}
}

// ---------- exam_generate ----------

func (e *pipelineEnv) newExam(t *testing.T, ebookID uuid.UUID) *domain.Exam {
	t.Helper()
	ex := &domain.Exam{
		ID:                uuid.New(),
		OwnerUserID:       uuid.New(),
		EbookID:           ebookID,
		Title:             "Tides quiz",
		QuestionsPerChunk: 5,
		Status:            domain.StatusPending,
	}
	if _, err := e.examRepo.Create(e.dbc(), []*domain.Exam{ex}); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return ex
}

func TestExamGenerateAbortsOnChunkFailureThenResumes(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusComplete)
	for i := 0; i < 3; i++ {
		env.addSection(t, eb.ID, i, fmt.Sprintf("section %d content long enough for questions", i))
	}
	ex := env.newExam(t, eb.ID)

	failing := &fakeChunker{failOn: map[int]error{2: fmt.Errorf("chunk processing failed after 3 attempts: boom")}}
	p := NewExamGeneratePipeline(env.ebookRepo, env.examRepo, failing, env.log)
	p.sleep = func(time.Duration) {}

	jc := env.newJob(t, domain.JobTypeExamGenerate, domain.EntityExam, ex.ID)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := env.examRepo.GetByID(env.dbc(), ex.ID)
	if got.Status != domain.StatusError {
		t.Fatalf("chunk failure must abort the run, got %s", got.Status)
	}
	qs, err := decodeQuestions(got.Questions)
	if err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(qs) != 5 {
		t.Fatalf("expected chunk 1's questions persisted, got %d", len(qs))
	}
	job, _ := env.jobRepo.GetByID(env.dbc(), jc.Job.ID)
	if job.Status != domain.JobFailed {
		t.Fatalf("job should be failed, got %s", job.Status)
	}

	// Resume: chunk index derives from the 5 stored questions, so chunk 1 is
	// never reprocessed.
	working := &fakeChunker{}
	p2 := NewExamGeneratePipeline(env.ebookRepo, env.examRepo, working, env.log)
	p2.sleep = func(time.Duration) {}
	if err := p2.Run(env.newJob(t, domain.JobTypeExamGenerate, domain.EntityExam, ex.ID)); err != nil {
		t.Fatalf("resume run: %v", err)
	}

	if working.calls != 2 {
		t.Fatalf("resume should process chunks 2 and 3 only, got %d calls", working.calls)
	}
	got, _ = env.examRepo.GetByID(env.dbc(), ex.ID)
	if got.Status != domain.StatusComplete || got.Progress != 100 {
		t.Fatalf("resume did not complete: %s progress=%d", got.Status, got.Progress)
	}
	qs, _ = decodeQuestions(got.Questions)
	if len(qs) != 15 {
		t.Fatalf("expected 15 questions after resume, got %d", len(qs))
	}
}

func TestExamGenerateDoubleResumeIsNoop(t *testing.T) {
	env := newPipelineEnv(t)
	eb := env.newEbook(t, domain.StatusComplete)
	ex := env.newExam(t, eb.ID)
	if err := env.examRepo.UpdateFields(env.dbc(), ex.ID, map[string]interface{}{
		"status":   domain.StatusComplete,
		"progress": 100,
	}); err != nil {
		t.Fatalf("seed complete: %v", err)
	}

	chunker := &fakeChunker{}
	p := NewExamGeneratePipeline(env.ebookRepo, env.examRepo, chunker, env.log)
	jc := env.newJob(t, domain.JobTypeExamGenerate, domain.EntityExam, ex.ID)
	if err := p.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	if chunker.calls != 0 {
		t.Fatalf("resume on complete exam must not call the processor, got %d", chunker.calls)
	}
	job, _ := env.jobRepo.GetByID(env.dbc(), jc.Job.ID)
	if job.Status != domain.JobSucceeded {
		t.Fatalf("expected no-op success, got %s", job.Status)
	}
}
