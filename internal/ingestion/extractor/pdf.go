package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	pdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yungbote/fablecast-backend/internal/clients/gcp"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

const (
	// Pages whose embedded text layer is thinner than this are treated as
	// scanned images and routed through OCR.
	minNativeChars = 40

	ocrPollInterval = 2 * time.Second
	ocrMaxPolls     = 30
)

// pdfSource reads one PDF page at a time: embedded text when present,
// Vision OCR for scanned pages.
type pdfSource struct {
	log    *logger.Logger
	bucket gcp.BucketService
	vision gcp.Vision
	sleep  func(time.Duration)

	ebookID   uuid.UUID
	localPath string
	tmpDir    string
	reader    *pdf.Reader
	file      *os.File
	total     int
}

func newPDFSource(ctx context.Context, ebookID uuid.UUID, storageKey string, bucket gcp.BucketService, vision gcp.Vision, log *logger.Logger, sleep func(time.Duration)) (*pdfSource, error) {
	tmpDir, err := os.MkdirTemp("", "extract-*")
	if err != nil {
		return nil, err
	}
	localPath := filepath.Join(tmpDir, "source.pdf")

	rc, err := bucket.DownloadFile(ctx, storageKey)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, err
	}
	out, err := os.Create(localPath)
	if err != nil {
		_ = rc.Close()
		_ = os.RemoveAll(tmpDir)
		return nil, err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = rc.Close()
		_ = out.Close()
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("download pdf: %w", err)
	}
	_ = rc.Close()
	_ = out.Close()

	total, err := api.PageCountFile(localPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("pdf page count: %w", err)
	}

	f, reader, err := pdf.Open(localPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("pdf reader: %w", err)
	}

	return &pdfSource{
		log:       log,
		bucket:    bucket,
		vision:    vision,
		sleep:     sleep,
		ebookID:   ebookID,
		localPath: localPath,
		tmpDir:    tmpDir,
		reader:    reader,
		file:      f,
		total:     total,
	}, nil
}

func (s *pdfSource) totalPages() int { return s.total }

func (s *pdfSource) close() {
	if s.file != nil {
		_ = s.file.Close()
	}
	if s.tmpDir != "" {
		_ = os.RemoveAll(s.tmpDir)
	}
}

func (s *pdfSource) pageText(ctx context.Context, pageIndex int) (string, error) {
	if pageIndex < 0 || pageIndex >= s.total {
		return "", fmt.Errorf("page index %d out of range [0,%d)", pageIndex, s.total)
	}

	text := s.nativePageText(pageIndex)
	if len(text) >= minNativeChars {
		return text, nil
	}
	return s.ocrPageText(ctx, pageIndex)
}

func (s *pdfSource) nativePageText(pageIndex int) string {
	page := s.reader.Page(pageIndex + 1)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return collapseLines(text)
}

func (s *pdfSource) ocrPageText(ctx context.Context, pageIndex int) (string, error) {
	pagePath := filepath.Join(s.tmpDir, fmt.Sprintf("page_%04d.pdf", pageIndex))
	pageNum := strconv.Itoa(pageIndex + 1)
	if err := api.TrimFile(s.localPath, pagePath, []string{pageNum}, nil); err != nil {
		return "", fmt.Errorf("split page %d: %w", pageIndex, err)
	}

	pageKey := fmt.Sprintf("ocr/%s/pages/page_%04d.pdf", s.ebookID, pageIndex)
	outPrefix := fmt.Sprintf("ocr/%s/out/page_%04d/", s.ebookID, pageIndex)

	f, err := os.Open(pagePath)
	if err != nil {
		return "", err
	}
	uploadErr := s.bucket.UploadFile(ctx, pageKey, f)
	_ = f.Close()
	if uploadErr != nil {
		return "", uploadErr
	}

	opName, err := s.vision.SubmitDocumentOCR(ctx, s.bucket.GCSURI(pageKey), "application/pdf", s.bucket.GCSURI(outPrefix))
	if err != nil {
		return "", err
	}

	done := false
	for poll := 0; poll < ocrMaxPolls; poll++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		done, err = s.vision.PollDocumentOCR(ctx, opName)
		if err != nil {
			return "", err
		}
		if done {
			break
		}
		s.sleep(ocrPollInterval)
	}
	if !done {
		return "", fmt.Errorf("OCR of page %d timed out after %d polls", pageIndex+1, ocrMaxPolls)
	}

	pages, err := s.vision.CollectDocumentOCR(ctx, s.bucket.GCSURI(outPrefix), 1)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return collapseLines(b.String()), nil
}
