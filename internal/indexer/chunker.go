package indexer

import "strings"

const (
	// maxChunkSize bounds each chunk's length in characters.
	maxChunkSize = 1000
	// chunkOverlap carries trailing context into the next chunk so a fact
	// split across a boundary still lands whole in at least one chunk.
	chunkOverlap = 100
)

// Chunk splits text into pieces of at most maxChunkSize characters,
// preferring paragraph then sentence boundaries, with a small overlap
// between consecutive chunks. Empty input yields no chunks.
func Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChunkSize {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxChunkSize {
			chunks = append(chunks, text)
			break
		}

		cut := splitPoint(text[:maxChunkSize])
		chunk := strings.TrimSpace(text[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - chunkOverlap
		if next <= 0 || next <= cut-maxChunkSize/2 {
			next = cut
		}
		text = strings.TrimLeft(text[next:], " \n\t")
	}
	return chunks
}

// splitPoint finds the best cut position within the window: the last
// paragraph break, else the last sentence end, else the last space, else
// the full window.
func splitPoint(window string) int {
	if i := strings.LastIndex(window, "\n\n"); i > maxChunkSize/2 {
		return i
	}
	for _, sep := range []string{". ", "! ", "? ", ".\n"} {
		if i := strings.LastIndex(window, sep); i > maxChunkSize/2 {
			return i + len(sep)
		}
	}
	if i := strings.LastIndex(window, " "); i > maxChunkSize/2 {
		return i
	}
	return len(window)
}
