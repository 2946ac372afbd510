// Package chunker splits document text into bounded-size chunks.
package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the maximum chunk length in characters.
const DefaultChunkSize = 1000

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// ErrNoChunks is returned by Split when the input holds no non-whitespace text.
var ErrNoChunks = errors.New("no chunks produced")

// Chunker is a recursive character splitter. Lengths are counted in runes.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithOverlap sets how many trailing characters of a chunk may be repeated at the
// start of the next one. Overlap only applies within a segment.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithSeparators replaces the separator hierarchy. The list should end with "".
func WithSeparators(seps ...string) Option {
	return func(c *Chunker) {
		if len(seps) > 0 {
			c.separators = seps
		}
	}
}

// New returns a Chunker with 1000-character chunks and no overlap unless overridden.
// An overlap not smaller than the chunk size is reset to zero.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:  DefaultChunkSize,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = 0
	}
	return c
}

// ChunkSize returns the configured maximum chunk length.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Split chunks each segment independently and concatenates the results in order.
// No chunk spans two segments. Returns ErrNoChunks if nothing but whitespace remains.
func (c *Chunker) Split(segments []string) ([]string, error) {
	var chunks []string
	for _, seg := range segments {
		for _, chunk := range c.splitText(seg, c.separators) {
			if strings.TrimSpace(chunk) != "" {
				chunks = append(chunks, chunk)
			}
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// splitText splits on the first separator present in text, recursing into
// pieces that are still too long with the remaining separators.
func (c *Chunker) splitText(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var out, pending []string
	for _, piece := range strings.Split(text, separator) {
		if length(piece) < c.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, c.merge(pending, separator)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, c.splitText(piece, rest)...)
		}
	}
	if len(pending) > 0 {
		out = append(out, c.merge(pending, separator)...)
	}
	return out
}

// merge greedily joins pieces with separator while the result fits the chunk size,
// carrying up to overlap characters of trailing pieces into the next chunk.
func (c *Chunker) merge(pieces []string, separator string) []string {
	sepLen := length(separator)
	var (
		out     []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, piece := range pieces {
		n := length(piece)
		if total+n+joinLen() > c.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				out = append(out, doc)
			}
			for len(current) > 0 && (total > c.overlap || total+n+joinLen() > c.chunkSize) {
				drop := length(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += n + joinLen()
		current = append(current, piece)
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
