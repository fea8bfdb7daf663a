// Package assemble builds the generation context and prompt from selected chunks.
package assemble

import (
	"fmt"
	"strings"

	"github.com/kotae-ai/kotae/internal/models"
)

// NoContextText is the context given to the model when retrieval selected
// nothing. It instructs the model to say so instead of fabricating.
const NoContextText = "No relevant material was found in the user's documents. " +
	"State that you could not find relevant information in the uploaded documents; do not invent an answer."

const promptTemplate = `You are a helpful assistant analyzing documents to answer questions accurately.

Context from relevant documents:
%s

Question: %s

Instructions:
1. First, identify which parts of the context are relevant to the question
2. Think through the answer step by step
3. Provide a clear, accurate answer based on the context
4. If the context doesn't contain enough information, say so clearly
5. Cite which source(s) you used in your answer

Answer:`

// Assembler turns selected chunks into a numbered context block.
type Assembler struct{}

// New returns an Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Assemble renders the selected chunks, in their given order, as numbered
// [Source i: label] blocks, and returns the deduplicated source labels in
// first-appearance order. An empty selection yields the no-material context.
func (a *Assembler) Assemble(selected []*models.RerankedCandidate) (string, []string) {
	if len(selected) == 0 {
		return NoContextText, nil
	}
	parts := make([]string, len(selected))
	var sources []string
	seen := make(map[string]bool)
	for i, rc := range selected {
		label := rc.Payload.SourceLabel()
		parts[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, label, rc.Payload.Text)
		if !seen[label] {
			seen[label] = true
			sources = append(sources, label)
		}
	}
	return strings.Join(parts, "\n\n"), sources
}

// BuildPrompt embeds the context and question into the instruction template.
func (a *Assembler) BuildPrompt(query, contextText string) string {
	return fmt.Sprintf(promptTemplate, contextText, query)
}
