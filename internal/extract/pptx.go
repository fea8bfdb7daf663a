package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// drawRun matches an <a:t> run with any attributes.
var drawRun = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func extractPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract pptx: not a zip: %w", err)
	}

	// Zip entry order is arbitrary; present slides in deck order.
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var parts []string
	for _, s := range slides {
		xml, err := readZipEntry(zr, s.name)
		if err != nil {
			return "", fmt.Errorf("extract pptx: %w", err)
		}
		lines := xmlParagraphs(string(xml), "</a:p>", drawRun)
		if len(lines) > 0 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
