package pipelines

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/audiogen"
	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/ingestion/chunkproc"
	"github.com/yungbote/fablecast-backend/internal/jobs/runtime"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
	"github.com/yungbote/fablecast-backend/internal/progress"
)

// AudioGeneratePipeline narrates a completed ebook section by section. A
// section that keeps failing is logged and skipped; the run still completes
// with gaps rather than aborting.
type AudioGeneratePipeline struct {
	log            *logger.Logger
	ebookRepo      repos.EbookRepo
	collectionRepo repos.AudioCollectionRepo
	audioRepo      repos.AudioRepo
	chunks         chunkproc.Processor
	synth          audiogen.Synthesizer
	sleep          func(time.Duration)
}

func NewAudioGeneratePipeline(
	ebookRepo repos.EbookRepo,
	collectionRepo repos.AudioCollectionRepo,
	audioRepo repos.AudioRepo,
	chunks chunkproc.Processor,
	synth audiogen.Synthesizer,
	log *logger.Logger,
) *AudioGeneratePipeline {
	return &AudioGeneratePipeline{
		log:            log.With("pipeline", domain.JobTypeAudioGenerate),
		ebookRepo:      ebookRepo,
		collectionRepo: collectionRepo,
		audioRepo:      audioRepo,
		chunks:         chunks,
		synth:          synth,
		sleep:          time.Sleep,
	}
}

func (p *AudioGeneratePipeline) Type() string { return domain.JobTypeAudioGenerate }

func (p *AudioGeneratePipeline) Run(jc *runtime.Context) error {
	dbc := dbctx.Context{Ctx: jc.Ctx}

	collectionID, err := entityUUID(jc, "collection_id")
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	col, err := p.collectionRepo.GetByID(dbc, collectionID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if col == nil {
		jc.Fail("load", fmt.Errorf("audio collection %s not found", collectionID))
		return nil
	}

	tracker := progress.NewTracker(progress.AudioCollectionTarget(p.collectionRepo, collectionID), p.log)

	if col.Status == domain.StatusComplete {
		jc.Succeed("synthesize", map[string]any{"resumed": "already complete"})
		return nil
	}
	if col.EbookID == nil {
		_ = tracker.MarkError(dbc, "collection has no source ebook")
		jc.Fail("load", fmt.Errorf("audio collection %s has no source ebook", collectionID))
		return nil
	}

	jc.Progress("wait", 0, "Waiting for ebook extraction")
	if err := waitForEbookComplete(dbc, p.ebookRepo, *col.EbookID, p.sleep); err != nil {
		_ = tracker.MarkError(dbc, err.Error())
		jc.Fail("wait", err)
		return nil
	}

	now := time.Now()
	if err := tracker.SetStatus(dbc, domain.StatusProcessing); err != nil {
		jc.Fail("start", err)
		return nil
	}
	if col.StartedAt == nil {
		_ = p.collectionRepo.UpdateFields(dbc, collectionID, map[string]interface{}{"started_at": now})
	}

	sections, err := p.ebookRepo.GetSections(dbc, *col.EbookID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if len(sections) == 0 {
		err := fmt.Errorf("ebook %s has no sections to narrate", *col.EbookID)
		_ = tracker.MarkError(dbc, err.Error())
		jc.Fail("load", err)
		return nil
	}

	// Sections already narrated in a previous run are skipped by index.
	done, err := p.existingIndexes(dbc, collectionID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}

	var (
		generated int
		skipped   int
		failed    int
		prevText  string
	)

	for i, sec := range sections {
		if jc.Ctx.Err() != nil {
			jc.Fail("synthesize", jc.Ctx.Err())
			return nil
		}
		if runCanceled(jc) {
			p.log.Info("Audio generation stopped between sections", "collection_id", collectionID, "reason", "canceled")
			return nil
		}

		if _, ok := done[sec.Index]; ok {
			skipped++
			prevText = sec.Content
			p.advance(dbc, jc, tracker, i+1, len(sections), sec.Title)
			continue
		}

		if err := p.synthesizeSection(dbc, col, sec, prevText, i == len(sections)-1); err != nil {
			// A broken section does not abort the run; log it and move on.
			failed++
			msg := fmt.Sprintf("Section %d (%s) failed: %s", sec.Index, sec.Title, err.Error())
			p.log.Warn("Section synthesis failed, continuing",
				"collection_id", collectionID,
				"section_index", sec.Index,
				"error", err.Error(),
			)
			_ = tracker.AppendLog(dbc, msg, "error")
		} else {
			generated++
		}
		prevText = sec.Content
		p.advance(dbc, jc, tracker, i+1, len(sections), sec.Title)
	}

	summary := map[string]any{
		"sections":  len(sections),
		"generated": generated,
		"skipped":   skipped,
		"failed":    failed,
	}
	if err := tracker.MarkComplete(dbc, summary); err != nil {
		jc.Fail("complete", err)
		return nil
	}
	_ = p.collectionRepo.UpdateFields(dbc, collectionID, map[string]interface{}{"finished_at": time.Now()})
	jc.Succeed("synthesize", summary)
	return nil
}

func (p *AudioGeneratePipeline) synthesizeSection(dbc dbctx.Context, col *domain.AudioCollection, sec *domain.Section, prevText string, isLast bool) error {
	in := audiogen.SectionInput{
		CollectionID: col.ID,
		Index:        sec.Index,
		Title:        sec.Title,
		SectionType:  sec.Type,
		Content:      sec.Content,
	}

	if col.AudioMethod == domain.AudioMethodTTS {
		res, err := p.chunks.Process(dbc.Ctx, prevText, sec.Content, chunkproc.ModeAudioScript, "", isLast)
		if err != nil {
			return err
		}
		if res.Empty {
			return fmt.Errorf("section content too short to narrate")
		}
		in.Segments = res.Segments
	} else if strings.TrimSpace(sec.Content) == "" {
		return fmt.Errorf("section has no content")
	}

	_, err := p.synth.SynthesizeSection(dbc, col.AudioMethod, in)
	return err
}

func (p *AudioGeneratePipeline) advance(dbc dbctx.Context, jc *runtime.Context, tracker *progress.Tracker, done, total int, title string) {
	pct := done * 100 / total
	if pct > 99 {
		pct = 99 // 100 is reserved for MarkComplete
	}
	msg := fmt.Sprintf("Generated audio for section %d of %d: %s", done, total, title)
	_ = tracker.SetProgress(dbc, pct, msg)
	jc.Progress("synthesize", pct, msg)
}

func (p *AudioGeneratePipeline) existingIndexes(dbc dbctx.Context, collectionID uuid.UUID) (map[int]struct{}, error) {
	audios, err := p.audioRepo.GetByCollectionID(dbc, collectionID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]struct{}, len(audios))
	for _, a := range audios {
		done[a.Index] = struct{}{}
	}
	return done, nil
}
