package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Shared helpers for the OOXML container formats (.docx, .pptx). Both are
// zip archives holding XML parts; visible text lives in run elements
// (<w:t>, <a:t>) that Word and PowerPoint split at arbitrary points, so
// runs inside one paragraph are concatenated without separators.

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// xmlParagraphs splits part XML on the closing paragraph tag and joins the
// run texts of each paragraph into one line. Empty paragraphs are dropped;
// paragraph structure survives as newlines so downstream chunking can snap
// to them.
func xmlParagraphs(partXML string, paragraphEnd string, runTag *regexp.Regexp) []string {
	var lines []string
	for _, para := range strings.Split(partXML, paragraphEnd) {
		var line strings.Builder
		for _, m := range runTag.FindAllStringSubmatch(para, -1) {
			line.WriteString(m[1])
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return lines
}
