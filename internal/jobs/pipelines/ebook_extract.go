package pipelines

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/ingestion/extractor"
	"github.com/yungbote/fablecast-backend/internal/jobs/runtime"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
	"github.com/yungbote/fablecast-backend/internal/progress"
)

const extractBatchSize = 3

// narrationCharsPerSec feeds the rough listening-time estimate on sections.
const narrationCharsPerSec = 15.0

// EbookExtractPipeline walks the document in page batches, persisting each
// batch's cleaned text as a Section row and its newly discovered TOC entries
// as ContentTitle rows. Resume is derived entirely from ProcessedPages.
type EbookExtractPipeline struct {
	log       *logger.Logger
	ebookRepo repos.EbookRepo
	extract   extractor.Extractor
}

func NewEbookExtractPipeline(ebookRepo repos.EbookRepo, extract extractor.Extractor, log *logger.Logger) *EbookExtractPipeline {
	return &EbookExtractPipeline{
		log:       log.With("pipeline", domain.JobTypeEbookExtract),
		ebookRepo: ebookRepo,
		extract:   extract,
	}
}

func (p *EbookExtractPipeline) Type() string { return domain.JobTypeEbookExtract }

func (p *EbookExtractPipeline) Run(jc *runtime.Context) error {
	dbc := dbctx.Context{Ctx: jc.Ctx}

	ebookID, err := entityUUID(jc, "ebook_id")
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	eb, err := p.ebookRepo.GetByID(dbc, ebookID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if eb == nil {
		jc.Fail("load", fmt.Errorf("ebook %s not found", ebookID))
		return nil
	}

	tracker := progress.NewTracker(progress.EbookTarget(p.ebookRepo, ebookID), p.log)

	// Resuming a finished extraction is a no-op success.
	if eb.Status == domain.StatusComplete {
		jc.Succeed("extract", map[string]any{"pages": eb.ProcessedPages, "resumed": "already complete"})
		return nil
	}

	if err := tracker.SetStatus(dbc, domain.StatusProcessing); err != nil {
		jc.Fail("start", err)
		return nil
	}

	// Section indexes continue from whatever a previous run persisted.
	existing, err := p.ebookRepo.GetSections(dbc, ebookID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	sectionIndex := len(existing)

	var (
		totalChars  int
		totalTitles int
		totalMs     int64
		batches     int
	)

	for {
		if jc.Ctx.Err() != nil {
			jc.Fail("extract", jc.Ctx.Err())
			return nil
		}
		if runCanceled(jc) {
			p.log.Info("Extraction stopped between batches", "ebook_id", ebookID, "reason", "canceled")
			return nil
		}

		eb, err = p.ebookRepo.GetByID(dbc, ebookID)
		if err != nil || eb == nil {
			jc.Fail("extract", fmt.Errorf("reload ebook %s: %w", ebookID, err))
			return nil
		}
		if eb.TotalPages > 0 && eb.ProcessedPages >= eb.TotalPages {
			break
		}

		priorTitles, err := p.loadTitles(dbc, ebookID)
		if err != nil {
			jc.Fail("extract", err)
			return nil
		}

		res, err := p.extract.Extract(jc.Ctx, extractor.ExtractInput{
			EbookID:     ebookID,
			StorageKey:  eb.StorageKey,
			FileExt:     eb.FileExt,
			PriorTitles: priorTitles,
		}, eb.ProcessedPages, extractBatchSize)
		if err != nil {
			_ = tracker.RecordFailedPages(dbc, failedPageRange(eb.ProcessedPages, extractBatchSize, eb.TotalPages))
			_ = tracker.MarkError(dbc, err.Error())
			jc.Fail("extract", err)
			return nil
		}

		if res.NewPageCount == 0 {
			// Past the end; trust the source's page count and finish.
			if err := p.ebookRepo.UpdateFields(dbc, ebookID, map[string]interface{}{
				"total_pages": res.TotalPages,
			}); err != nil {
				jc.Fail("extract", err)
				return nil
			}
			break
		}

		if err := p.persistBatch(dbc, eb, res, len(priorTitles), sectionIndex); err != nil {
			_ = tracker.MarkError(dbc, err.Error())
			jc.Fail("persist", err)
			return nil
		}

		sectionIndex++
		batches++
		totalChars += res.Metrics.Characters
		totalTitles += res.Metrics.TitlesAdded
		totalMs += res.Metrics.DurationMs

		processed := eb.ProcessedPages + res.NewPageCount
		msg := fmt.Sprintf("Extracted pages %d-%d of %d", eb.ProcessedPages+1, processed, res.TotalPages)
		_ = tracker.SetProgress(dbc, 0, msg)
		_ = tracker.AppendLog(dbc, msg, "info")
		pct := 0
		if res.TotalPages > 0 {
			pct = processed * 100 / res.TotalPages
		}
		jc.Progress("extract", pct, msg)

		if processed >= res.TotalPages {
			break
		}
	}

	summary := map[string]any{
		"batches":     batches,
		"characters":  totalChars,
		"titles":      totalTitles,
		"duration_ms": totalMs,
	}
	if err := tracker.MarkComplete(dbc, summary); err != nil {
		jc.Fail("complete", err)
		return nil
	}
	jc.Succeed("extract", summary)
	return nil
}

// persistBatch writes the batch's Section row, its new ContentTitle rows and
// the page counters in one pass. Section rows are content spans in reading
// order; the head/sub hierarchy lives on the content titles.
func (p *EbookExtractPipeline) persistBatch(dbc dbctx.Context, eb *domain.Ebook, res *extractor.BatchResult, titleOffset, sectionIndex int) error {
	title, sectionType := batchSectionIdentity(res, eb.ProcessedPages)

	section := &domain.Section{
		ID:                   uuid.New(),
		EbookID:              eb.ID,
		Index:                sectionIndex,
		Title:                title,
		Content:              res.Text,
		Type:                 sectionType,
		EstimatedDurationSec: float64(len(res.Text)) / narrationCharsPerSec,
		Complete:             true,
	}
	if err := p.ebookRepo.AppendSections(dbc, []*domain.Section{section}); err != nil {
		return err
	}

	titles := make([]*domain.ContentTitle, 0, len(res.ContentTitles))
	for i, t := range res.ContentTitles {
		titles = append(titles, &domain.ContentTitle{
			ID:      uuid.New(),
			EbookID: eb.ID,
			Index:   titleOffset + i,
			Title:   t.Title,
			Type:    t.Type,
			Page:    t.Page,
		})
	}
	if err := p.ebookRepo.AppendContentTitles(dbc, titles); err != nil {
		return err
	}

	return p.ebookRepo.UpdateFields(dbc, eb.ID, map[string]interface{}{
		"processed_pages": eb.ProcessedPages + res.NewPageCount,
		"total_pages":     res.TotalPages,
	})
}

// batchSectionIdentity names the batch's section after its first new head
// title when one appeared; batches without a new head continue the previous
// head as a sub span.
func batchSectionIdentity(res *extractor.BatchResult, startPage int) (string, string) {
	for _, t := range res.ContentTitles {
		if t.Type == domain.TitleTypeHead && strings.TrimSpace(t.Title) != "" {
			return t.Title, domain.TitleTypeHead
		}
	}
	for _, t := range res.ContentTitles {
		if strings.TrimSpace(t.Title) != "" {
			return t.Title, domain.TitleTypeSub
		}
	}
	return fmt.Sprintf("Pages %d-%d", startPage+1, startPage+res.NewPageCount), domain.TitleTypeSub
}

// failedPageRange lists the 1-based pages the failed batch covered. Before
// the first successful batch the page count is unknown, so the full batch
// width is reported.
func failedPageRange(startPage, batchSize, totalPages int) []int {
	end := startPage + batchSize
	if totalPages > 0 && end > totalPages {
		end = totalPages
	}
	pages := make([]int, 0, end-startPage)
	for p := startPage + 1; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}

func (p *EbookExtractPipeline) loadTitles(dbc dbctx.Context, ebookID uuid.UUID) ([]domain.ContentTitle, error) {
	rows, err := p.ebookRepo.GetContentTitles(dbc, ebookID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ContentTitle, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}
