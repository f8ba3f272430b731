package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/iterator"

	"github.com/yungbote/fablecast-backend/internal/platform/ctxutil"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

// Vision runs document OCR through the async batch API. Submit starts the
// annotation and returns the operation name as a handle; callers poll until
// done, then collect the per-page text from the output JSON written to GCS.
type Vision interface {
	SubmitDocumentOCR(ctx context.Context, gcsSourceURI, mimeType, gcsOutputPrefix string) (string, error)
	PollDocumentOCR(ctx context.Context, opName string) (bool, error)
	CollectDocumentOCR(ctx context.Context, gcsOutputPrefix string, maxPages int) ([]OCRPage, error)
	Close() error
}

type OCRPage struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

type visionService struct {
	log     *logger.Logger
	client  *vision.ImageAnnotatorClient
	storage *storage.Client
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Vision")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	vClient, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	sClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		_ = vClient.Close()
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &visionService{log: slog, client: vClient, storage: sClient}, nil
}

func (s *visionService) Close() error {
	if s == nil {
		return nil
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.storage != nil {
		_ = s.storage.Close()
	}
	return nil
}

func (s *visionService) SubmitDocumentOCR(ctx context.Context, gcsSourceURI, mimeType, gcsOutputPrefix string) (string, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	if !strings.HasPrefix(gcsSourceURI, "gs://") {
		return "", fmt.Errorf("gcsSourceURI must be gs://... got %q", gcsSourceURI)
	}
	if !strings.HasPrefix(gcsOutputPrefix, "gs://") {
		return "", fmt.Errorf("gcsOutputPrefix must be gs://... got %q", gcsOutputPrefix)
	}
	if !strings.HasSuffix(gcsOutputPrefix, "/") {
		gcsOutputPrefix += "/"
	}

	// Stale output under the prefix would pollute collection on resume.
	_ = s.deletePrefixBestEffort(ctx, gcsOutputPrefix)

	req := &visionpb.AsyncBatchAnnotateFilesRequest{
		Requests: []*visionpb.AsyncAnnotateFileRequest{
			{
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				InputConfig: &visionpb.InputConfig{
					GcsSource: &visionpb.GcsSource{Uri: gcsSourceURI},
					MimeType:  mimeType,
				},
				OutputConfig: &visionpb.OutputConfig{
					GcsDestination: &visionpb.GcsDestination{Uri: gcsOutputPrefix},
					BatchSize:      10,
				},
			},
		},
	}

	op, err := s.client.AsyncBatchAnnotateFiles(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision AsyncBatchAnnotateFiles: %w", err)
	}
	return op.Name(), nil
}

func (s *visionService) PollDocumentOCR(ctx context.Context, opName string) (bool, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	op := s.client.AsyncBatchAnnotateFilesOperation(opName)
	if _, err := op.Poll(ctx); err != nil {
		return false, fmt.Errorf("vision operation poll: %w", err)
	}
	return op.Done(), nil
}

func (s *visionService) CollectDocumentOCR(ctx context.Context, gcsOutputPrefix string, maxPages int) ([]OCRPage, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if !strings.HasSuffix(gcsOutputPrefix, "/") {
		gcsOutputPrefix += "/"
	}
	if maxPages <= 0 {
		maxPages = 500
	}

	bucket, prefix, err := parseGCSURI(gcsOutputPrefix)
	if err != nil {
		return nil, err
	}

	keys, err := s.listJSONKeys(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no vision output JSON under %s", gcsOutputPrefix)
	}

	pages := make([]OCRPage, 0, minInt(maxPages, 256))
	for _, key := range keys {
		if len(pages) >= maxPages {
			break
		}
		b, err := s.readObject(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("read vision output %s: %w", key, err)
		}
		pages = append(pages, parseAsyncOutput(b, maxPages-len(pages))...)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

// ---------- helpers ----------

func (s *visionService) listJSONKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := s.storage.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list vision output: %w", err)
		}
		if strings.HasSuffix(attrs.Name, ".json") {
			keys = append(keys, attrs.Name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *visionService) readObject(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.storage.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *visionService) deletePrefixBestEffort(ctx context.Context, gcsPrefix string) error {
	bucket, prefix, err := parseGCSURI(gcsPrefix)
	if err != nil {
		return err
	}
	it := s.storage.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		_ = s.storage.Bucket(bucket).Object(attrs.Name).Delete(ctx)
	}
}

func parseAsyncOutput(b []byte, maxPages int) []OCRPage {
	if maxPages <= 0 {
		return nil
	}
	var root struct {
		Responses []struct {
			FullTextAnnotation struct {
				Text string `json:"text"`
			} `json:"fullTextAnnotation"`
			Context struct {
				PageNumber int `json:"pageNumber"`
			} `json:"context"`
		} `json:"responses"`
	}
	if err := json.Unmarshal(b, &root); err != nil {
		return nil
	}
	out := make([]OCRPage, 0, minInt(maxPages, len(root.Responses)))
	for _, r := range root.Responses {
		if len(out) >= maxPages {
			break
		}
		out = append(out, OCRPage{
			PageNumber: r.Context.PageNumber,
			Text:       strings.TrimSpace(r.FullTextAnnotation.Text),
		})
	}
	return out
}
