package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

const (
	docxDefaultBodyPath = "word/document.xml"
	ooxmlContentTypes   = "[Content_Types].xml"
	docxBodyContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// wordRun matches a <w:t> run with any attributes, e.g. <w:t xml:space="preserve">.
var wordRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// docxBodyOverride locates the main-document Override in [Content_Types].xml.
// Attribute order is not fixed, so both orders are tried.
var docxBodyOverride = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"[^>]+PartName="([^"]+)"`),
}

// docxBodyPath resolves the main document part from the package manifest,
// falling back to the conventional word/document.xml.
func docxBodyPath(zr *zip.Reader) string {
	manifest, err := readZipEntry(zr, ooxmlContentTypes)
	if err != nil || manifest == nil {
		return docxDefaultBodyPath
	}
	for _, re := range docxBodyOverride {
		if m := re.FindSubmatch(manifest); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultBodyPath
}

func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract docx: not a zip: %w", err)
	}
	bodyPath := docxBodyPath(zr)
	body, err := readZipEntry(zr, bodyPath)
	if err != nil {
		return "", fmt.Errorf("extract docx: %w", err)
	}
	if body == nil {
		return "", fmt.Errorf("extract docx: %s not found", bodyPath)
	}
	lines := xmlParagraphs(string(body), "</w:p>", wordRun)
	return strings.Join(lines, "\n"), nil
}
