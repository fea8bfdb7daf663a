// Package chunker splits converted document text into overlapping passages.
package chunker

import "github.com/kotae-ai/kotae/internal/config"

// boundaries are the cut points tried in order of preference before falling
// back to a hard character cut: paragraph break, line break, sentence end, word gap.
var boundaries = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune(" "),
}

// Chunker splits text into overlapping rune-window chunks. Every chunk is an
// exact substring of the input, so concatenating chunks with the shared
// overlap removed reconstructs the input losslessly.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker with the given size and overlap (in runes).
// Non-positive sizes fall back to the defaults; the overlap is clamped below
// the chunk size so every step makes forward progress.
func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// ChunkSize returns the configured maximum chunk length in runes.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap length in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into chunks of at most chunkSize runes. Adjacent chunks
// share exactly overlap runes, except at the document boundary. Cuts land on
// the latest natural boundary inside the window when one exists past the
// overlap region; otherwise the window is cut hard at chunkSize.
// Empty input yields no chunks and no error.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	start := 0
	for {
		if len(runes)-start <= c.chunkSize {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		end := start + c.cut(runes[start:start+c.chunkSize])
		chunks = append(chunks, string(runes[start:end]))
		start = end - c.overlap
	}
}

// cut returns the cut offset for one full window. The offset is always in
// (overlap, chunkSize] so the next chunk starts strictly after the current one.
func (c *Chunker) cut(window []rune) int {
	for _, sep := range boundaries {
		if off := lastBoundary(window, sep, c.overlap); off > 0 {
			return off
		}
	}
	return len(window)
}

// lastBoundary returns the offset just past the last occurrence of sep in
// window whose end falls after min, or 0 when there is none.
func lastBoundary(window, sep []rune, min int) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		if i+len(sep) <= min {
			return 0
		}
		if matchAt(window, sep, i) {
			return i + len(sep)
		}
	}
	return 0
}

func matchAt(window, sep []rune, at int) bool {
	for j, r := range sep {
		if window[at+j] != r {
			return false
		}
	}
	return true
}

// Reconstruct joins chunks produced by Split back into the original text by
// dropping each chunk's leading overlap. Used to verify chunk coverage.
func (c *Chunker) Reconstruct(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0])
	for _, ch := range chunks[1:] {
		r := []rune(ch)
		if len(r) > c.overlap {
			r = r[c.overlap:]
		} else {
			r = nil
		}
		out = append(out, r...)
	}
	return string(out)
}
