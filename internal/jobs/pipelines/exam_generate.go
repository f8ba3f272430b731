package pipelines

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/ingestion/chunkproc"
	"github.com/yungbote/fablecast-backend/internal/jobs/runtime"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
	"github.com/yungbote/fablecast-backend/internal/progress"
)

// ExamGeneratePipeline writes quiz questions chunk by chunk. Questions are
// append-only; the resume point is always derived from the stored question
// count, never persisted separately. Unlike audio generation, a failed chunk
// aborts the whole run.
type ExamGeneratePipeline struct {
	log       *logger.Logger
	ebookRepo repos.EbookRepo
	examRepo  repos.ExamRepo
	chunks    chunkproc.Processor
	sleep     func(time.Duration)
}

func NewExamGeneratePipeline(
	ebookRepo repos.EbookRepo,
	examRepo repos.ExamRepo,
	chunks chunkproc.Processor,
	log *logger.Logger,
) *ExamGeneratePipeline {
	return &ExamGeneratePipeline{
		log:       log.With("pipeline", domain.JobTypeExamGenerate),
		ebookRepo: ebookRepo,
		examRepo:  examRepo,
		chunks:    chunks,
		sleep:     time.Sleep,
	}
}

func (p *ExamGeneratePipeline) Type() string { return domain.JobTypeExamGenerate }

func (p *ExamGeneratePipeline) Run(jc *runtime.Context) error {
	dbc := dbctx.Context{Ctx: jc.Ctx}

	examID, err := entityUUID(jc, "exam_id")
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	ex, err := p.examRepo.GetByID(dbc, examID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if ex == nil {
		jc.Fail("load", fmt.Errorf("exam %s not found", examID))
		return nil
	}

	tracker := progress.NewTracker(progress.ExamTarget(p.examRepo, examID), p.log)

	if ex.Status == domain.StatusComplete {
		jc.Succeed("generate", map[string]any{"resumed": "already complete"})
		return nil
	}

	jc.Progress("wait", 0, "Waiting for ebook extraction")
	if err := waitForEbookComplete(dbc, p.ebookRepo, ex.EbookID, p.sleep); err != nil {
		_ = tracker.MarkError(dbc, err.Error())
		jc.Fail("wait", err)
		return nil
	}

	if err := tracker.SetStatus(dbc, domain.StatusProcessing); err != nil {
		jc.Fail("start", err)
		return nil
	}

	chunks, err := p.ensureChunks(dbc, ex)
	if err != nil {
		_ = tracker.MarkError(dbc, err.Error())
		jc.Fail("chunks", err)
		return nil
	}
	if len(chunks) == 0 {
		err := fmt.Errorf("ebook %s has no text to generate questions from", ex.EbookID)
		_ = tracker.MarkError(dbc, err.Error())
		jc.Fail("chunks", err)
		return nil
	}

	questions, err := decodeQuestions(ex.Questions)
	if err != nil {
		_ = tracker.MarkError(dbc, err.Error())
		jc.Fail("load", err)
		return nil
	}

	perChunk := ex.QuestionsPerChunk
	if perChunk <= 0 {
		perChunk = 5
	}

	// Chunk numbering is 1-based; everything before the derived start chunk
	// already contributed its questions.
	startChunk := len(questions)/perChunk + 1

	for chunk := startChunk; chunk <= len(chunks); chunk++ {
		if jc.Ctx.Err() != nil {
			jc.Fail("generate", jc.Ctx.Err())
			return nil
		}
		if runCanceled(jc) {
			p.log.Info("Exam generation stopped between chunks", "exam_id", examID, "reason", "canceled")
			return nil
		}

		prev := ""
		if chunk > 1 {
			prev = chunks[chunk-2]
		}
		instructions := fmt.Sprintf("Write exactly %d questions.", perChunk)

		res, err := p.chunks.Process(jc.Ctx, prev, chunks[chunk-1], chunkproc.ModeQuestionSet, instructions, chunk == len(chunks))
		if err != nil {
			// A failed chunk aborts the run; resume picks up at this chunk.
			_ = tracker.MarkError(dbc, err.Error())
			jc.Fail("generate", fmt.Errorf("chunk %d: %w", chunk, err))
			return nil
		}

		if !res.Empty {
			got := res.Questions
			if len(got) > perChunk {
				got = got[:perChunk]
			}
			questions = append(questions, got...)
			raw, err := json.Marshal(questions)
			if err != nil {
				jc.Fail("persist", err)
				return nil
			}
			if err := p.examRepo.UpdateFields(dbc, examID, map[string]interface{}{
				"questions": datatypes.JSON(raw),
			}); err != nil {
				_ = tracker.MarkError(dbc, err.Error())
				jc.Fail("persist", err)
				return nil
			}
		}

		pct := chunk * 100 / len(chunks)
		if pct > 99 {
			pct = 99
		}
		msg := fmt.Sprintf("Generated questions for chunk %d of %d", chunk, len(chunks))
		_ = tracker.SetProgress(dbc, pct, msg)
		jc.Progress("generate", pct, msg)
	}

	summary := map[string]any{
		"chunks":    len(chunks),
		"questions": len(questions),
	}
	if err := tracker.MarkComplete(dbc, summary); err != nil {
		jc.Fail("complete", err)
		return nil
	}
	jc.Succeed("generate", summary)
	return nil
}

// ensureChunks returns the exam's source chunks, deriving and persisting them
// from the ebook's sections on first run so resumes see identical input.
func (p *ExamGeneratePipeline) ensureChunks(dbc dbctx.Context, ex *domain.Exam) ([]string, error) {
	if len(ex.TextChunks) > 0 {
		var chunks []string
		if err := json.Unmarshal(ex.TextChunks, &chunks); err != nil {
			return nil, fmt.Errorf("decode exam text chunks: %w", err)
		}
		return chunks, nil
	}

	sections, err := p.ebookRepo.GetSections(dbc, ex.EbookID)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, 0, len(sections))
	for _, sec := range sections {
		if sec.Content == "" {
			continue
		}
		chunks = append(chunks, sec.Content)
	}

	raw, err := json.Marshal(chunks)
	if err != nil {
		return nil, err
	}
	if err := p.examRepo.UpdateFields(dbc, ex.ID, map[string]interface{}{
		"text_chunks": datatypes.JSON(raw),
	}); err != nil {
		return nil, err
	}
	return chunks, nil
}

func decodeQuestions(raw datatypes.JSON) ([]domain.Question, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, fmt.Errorf("decode exam questions: %w", err)
	}
	return qs, nil
}
