package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// pageCharSize is the synthetic page length for formats with no native page
// boundaries (txt, html, csv, docx).
const pageCharSize = 3000

var htmlTagRe = regexp.MustCompile(`(?s)<[^>]*>`)

func extractNativeText(ext string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}
	switch ext {
	case ".txt":
		return collapseWhitespace(string(data)), nil
	case ".html", ".htm":
		return extractHTML(string(data)), nil
	case ".csv":
		return extractCSV(data)
	case ".docx":
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("no native extractor for %s", ext)
	}
}

func extractHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return collapseWhitespace(s)
}

func extractCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var out strings.Builder
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("csv read: %w", err)
		}
		out.WriteString(strings.Join(record, ", "))
		out.WriteString("\n")
	}
	s := strings.TrimSpace(out.String())
	if s == "" {
		return "", fmt.Errorf("no rows extracted from csv")
	}
	return s, nil
}

func extractDOCX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", fmt.Errorf("docx is not a valid zip container: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx missing word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()

	s := collapseLines(extractTextFromXML(b, "t"))
	if s == "" {
		return "", fmt.Errorf("no text extracted from docx")
	}
	return s, nil
}

func extractTextFromXML(xmlBytes []byte, localTag string) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != localTag {
			continue
		}
		var v string
		_ = dec.DecodeElement(&v, &se)
		if v != "" {
			out.WriteString(v)
			out.WriteString(" ")
		}
	}
	return out.String()
}

// paginate slices text into fixed-size synthetic pages on whitespace
// boundaries where possible.
func paginate(text string, pageSize int) []string {
	if pageSize <= 0 {
		pageSize = pageCharSize
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var pages []string
	for len(text) > pageSize {
		cut := pageSize
		if idx := strings.LastIndexAny(text[:pageSize], " \n\t"); idx > pageSize/2 {
			cut = idx
		}
		pages = append(pages, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		pages = append(pages, text)
	}
	return pages
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	var out strings.Builder
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(strings.Join(fields, " "))
	}
	return out.String()
}

func collapseLines(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
