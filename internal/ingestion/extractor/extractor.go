package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/fablecast-backend/internal/clients/gcp"
	"github.com/yungbote/fablecast-backend/internal/clients/openai"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

const (
	defaultBatchSize = 3
	ocrConcurrency   = 3
)

// ExtractInput identifies the source document and carries the TOC context
// accumulated by earlier batches.
type ExtractInput struct {
	EbookID     uuid.UUID
	StorageKey  string
	FileExt     string
	PriorTitles []domain.ContentTitle
}

// BatchResult is one batch's worth of extraction. ContentTitles carry only
// Title, Type and Page; the caller assigns identity and index and persists.
type BatchResult struct {
	Text          string
	ContentTitles []domain.ContentTitle
	NewPageCount  int
	TotalPages    int
	Metrics       BatchMetrics
}

type BatchMetrics struct {
	Characters  int   `json:"characters"`
	TitlesAdded int   `json:"titles_added"`
	DurationMs  int64 `json:"duration_ms"`
}

// StructuringLLM is the slice of the LLM client extraction needs.
type StructuringLLM interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	GenerateTextWithImages(ctx context.Context, system string, user string, images []openai.ImageInput) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, in ExtractInput, startPageIndex, batchSize int) (*BatchResult, error)
}

type extractor struct {
	log    *logger.Logger
	bucket gcp.BucketService
	vision gcp.Vision
	llm    StructuringLLM
	sleep  func(time.Duration)
}

func NewExtractor(bucket gcp.BucketService, vision gcp.Vision, llm StructuringLLM, log *logger.Logger) (Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if bucket == nil || llm == nil {
		return nil, fmt.Errorf("bucket and llm required")
	}
	return &extractor{
		log:    log.With("service", "ContentExtractor"),
		bucket: bucket,
		vision: vision,
		llm:    llm,
		sleep:  time.Sleep,
	}, nil
}

// pageSource yields one page of raw text at a time.
type pageSource interface {
	totalPages() int
	pageText(ctx context.Context, pageIndex int) (string, error)
}

func (e *extractor) Extract(ctx context.Context, in ExtractInput, startPageIndex, batchSize int) (*BatchResult, error) {
	ext := strings.ToLower(strings.TrimSpace(in.FileExt))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	switch ext {
	case ".pdf":
		src, err := newPDFSource(ctx, in.EbookID, in.StorageKey, e.bucket, e.vision, e.log, e.sleep)
		if err != nil {
			return nil, err
		}
		defer src.close()
		return e.extractFromSource(ctx, src, in.PriorTitles, startPageIndex, batchSize)

	case ".txt", ".html", ".htm", ".csv", ".docx":
		data, err := e.download(ctx, in.StorageKey)
		if err != nil {
			return nil, err
		}
		text, err := extractNativeText(ext, data)
		if err != nil {
			return nil, err
		}
		src := &textSource{pages: paginate(text, pageCharSize)}
		return e.extractFromSource(ctx, src, in.PriorTitles, startPageIndex, batchSize)

	case ".png", ".jpg", ".jpeg":
		src := &imageSource{extractor: e, storageKey: in.StorageKey}
		return e.extractFromSource(ctx, src, in.PriorTitles, startPageIndex, batchSize)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, in.FileExt)
	}
}

// extractFromSource reads the batch's pages (bounded concurrency for the OCR
// path) and asks the LLM to structure them into clean text plus TOC entries.
func (e *extractor) extractFromSource(ctx context.Context, src pageSource, priorTitles []domain.ContentTitle, startPageIndex, batchSize int) (*BatchResult, error) {
	started := time.Now()
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if startPageIndex < 0 {
		startPageIndex = 0
	}

	total := src.totalPages()
	if total == 0 {
		return nil, fmt.Errorf("document has no extractable pages")
	}
	if startPageIndex >= total {
		return &BatchResult{TotalPages: total}, nil
	}

	end := startPageIndex + batchSize
	if end > total {
		end = total
	}

	texts := make([]string, end-startPageIndex)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ocrConcurrency)
	for i := startPageIndex; i < end; i++ {
		g.Go(func() error {
			text, err := src.pageText(gctx, i)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			texts[i-startPageIndex] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	text, titles, err := e.structureBatch(ctx, texts, priorTitles, startPageIndex)
	if err != nil {
		return nil, err
	}

	return &BatchResult{
		Text:          text,
		ContentTitles: titles,
		NewPageCount:  end - startPageIndex,
		TotalPages:    total,
		Metrics: BatchMetrics{
			Characters:  len(text),
			TitlesAdded: len(titles),
			DurationMs:  time.Since(started).Milliseconds(),
		},
	}, nil
}

const structureSystem = `You clean up raw extracted book pages for an audio learning app.
Return JSON shaped as {"text":"<cleaned text of these pages>","contentTitles":[{"title":"...","type":"head|sub","page":<page number>}]}.
contentTitles lists only NEW chapter or section headings that appear on these pages and are not already in the known table of contents.
Fix OCR artifacts and drop page furniture (headers, footers, page numbers) but never invent or summarize content.`

func (e *extractor) structureBatch(ctx context.Context, pageTexts []string, priorTitles []domain.ContentTitle, startPageIndex int) (string, []domain.ContentTitle, error) {
	var user strings.Builder
	if len(priorTitles) > 0 {
		user.WriteString("Known table of contents so far:\n")
		for _, t := range priorTitles {
			fmt.Fprintf(&user, "- [%s] %s (page %d)\n", t.Type, t.Title, t.Page)
		}
		user.WriteString("\n")
	}
	for i, text := range pageTexts {
		fmt.Fprintf(&user, "--- Page %d ---\n%s\n", startPageIndex+i+1, text)
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
			"contentTitles": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{"type": "string"},
						"type":  map[string]any{"type": "string", "enum": []string{"head", "sub"}},
						"page":  map[string]any{"type": "integer"},
					},
					"required":             []string{"title", "type", "page"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"text", "contentTitles"},
		"additionalProperties": false,
	}

	obj, err := e.llm.GenerateJSON(ctx, structureSystem, user.String(), "extracted_pages", schema)
	if err != nil {
		return "", nil, err
	}

	text, _ := obj["text"].(string)
	if strings.TrimSpace(text) == "" {
		return "", nil, fmt.Errorf("structuring response missing text")
	}

	rawTitles, _ := obj["contentTitles"].([]any)
	titles := make([]domain.ContentTitle, 0, len(rawTitles))
	for _, rt := range rawTitles {
		m, _ := rt.(map[string]any)
		if m == nil {
			continue
		}
		title, _ := m["title"].(string)
		if strings.TrimSpace(title) == "" {
			continue
		}
		typ, _ := m["type"].(string)
		if typ != domain.TitleTypeHead && typ != domain.TitleTypeSub {
			typ = domain.TitleTypeHead
		}
		page := 0
		if p, ok := m["page"].(float64); ok {
			page = int(p)
		}
		titles = append(titles, domain.ContentTitle{
			Title: strings.TrimSpace(title),
			Type:  typ,
			Page:  page,
		})
	}
	return strings.TrimSpace(text), titles, nil
}

func (e *extractor) download(ctx context.Context, storageKey string) ([]byte, error) {
	rc, err := e.bucket.DownloadFile(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ---------- sources ----------

type textSource struct {
	pages []string
}

func (s *textSource) totalPages() int { return len(s.pages) }

func (s *textSource) pageText(_ context.Context, pageIndex int) (string, error) {
	if pageIndex < 0 || pageIndex >= len(s.pages) {
		return "", fmt.Errorf("page index %d out of range [0,%d)", pageIndex, len(s.pages))
	}
	return s.pages[pageIndex], nil
}

// imageSource treats a single uploaded image as a one-page document and
// reads it through the LLM's vision input.
type imageSource struct {
	extractor  *extractor
	storageKey string
}

func (s *imageSource) totalPages() int { return 1 }

func (s *imageSource) pageText(ctx context.Context, pageIndex int) (string, error) {
	if pageIndex != 0 {
		return "", fmt.Errorf("image documents have a single page")
	}
	url := s.extractor.bucket.GetPublicURL(s.storageKey)
	text, err := s.extractor.llm.GenerateTextWithImages(ctx,
		"You transcribe text from page images exactly as written. Output the text only.",
		"Transcribe this page.",
		[]openai.ImageInput{{ImageURL: url, Detail: "high"}},
	)
	if err != nil {
		return "", err
	}
	return collapseLines(text), nil
}
