// Package citation detects inline [n] citation markers in a streamed
// response and resolves them to retrieved source chunks.
//
// Markers arrive split across arbitrary chunk boundaries, so the extractor
// keeps a small tail buffer of unresolved text instead of re-scanning the
// accumulated response. For a fixed input string, the emitted drafts are
// identical regardless of how the input is chunked.
package citation

import (
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/citedraft/citedraft/internal/retrieval"
)

// tailLimit bounds the unresolved tail buffer, in runes. It is sized so the
// longest possible partial marker (bracket plus markerMaxDigits digits plus
// bracket) can never be truncated mid-arrival.
const tailLimit = 8

// markerMaxDigits caps the digits accepted in a marker. Anything longer is
// not a citation.
const markerMaxDigits = 6

var markerPattern = regexp.MustCompile(`\[(\d{1,` + strconv.Itoa(markerMaxDigits) + `})\]`)

// Draft is a resolved citation marker. Source is nil for an orphaned
// marker, one whose number cannot be mapped to any retrieved chunk; the
// caller surfaces that as a degraded citation, not a stream failure.
type Draft struct {
	Number int
	Source *retrieval.Chunk
	Start  int // rune offset of '[' in the full response
	End    int // rune offset one past ']'
}

// Extractor consumes a live token stream and emits citation drafts.
// One instance per generation; Feed must be called single-threaded, in
// stream order.
type Extractor struct {
	sources []retrieval.Chunk

	buffer string // unresolved tail of the stream
	offset int    // rune count consumed before buffer start

	assigned   map[int]*retrieval.Chunk // marker number -> source (nil = orphan)
	nextSource int                      // next source index for a first-seen number
}

// NewExtractor creates an extractor over the retrieved sources for one
// generation. The sources slice is captured as-is and must not be mutated.
func NewExtractor(sources []retrieval.Chunk) *Extractor {
	return &Extractor{
		sources:  sources,
		assigned: make(map[int]*retrieval.Chunk),
	}
}

// Feed appends the next stream chunk and returns any citation drafts that
// completed inside it. The returned slice is nil when no marker resolved.
func (e *Extractor) Feed(chunk string) []Draft {
	e.buffer += chunk

	var drafts []Draft
	for {
		loc := markerPattern.FindStringSubmatchIndex(e.buffer)
		if loc == nil {
			break
		}

		number, err := strconv.Atoi(e.buffer[loc[2]:loc[3]])
		if err != nil {
			// Unreachable with the digit-only pattern.
			e.consume(loc[1])
			continue
		}

		start := e.offset + utf8.RuneCountInString(e.buffer[:loc[0]])
		end := e.offset + utf8.RuneCountInString(e.buffer[:loc[1]])
		drafts = append(drafts, Draft{
			Number: number,
			Source: e.resolve(number),
			Start:  start,
			End:    end,
		})
		e.consume(loc[1])
	}

	e.trim()
	return drafts
}

// resolve maps a marker number to a source chunk.
//
// Numbers are assigned by the response's order of first mention, not by the
// source array index: the first distinct number seen binds to the first
// source, the second distinct number to the second source, and so on.
// Re-cited numbers reuse their binding. A number beyond the source count,
// or a distinct number arriving after all sources are bound, is an orphan.
func (e *Extractor) resolve(number int) *retrieval.Chunk {
	if src, seen := e.assigned[number]; seen {
		return src
	}

	var src *retrieval.Chunk
	if number >= 1 && number <= len(e.sources) && e.nextSource < len(e.sources) {
		src = &e.sources[e.nextSource]
		e.nextSource++
	}
	e.assigned[number] = src
	return src
}

// consume discards the first n bytes of the buffer, advancing the rune offset.
func (e *Extractor) consume(n int) {
	e.offset += utf8.RuneCountInString(e.buffer[:n])
	e.buffer = e.buffer[n:]
}

// trim bounds the buffer to its last tailLimit runes. Safe because a
// complete marker would already have matched, and a partial one fits inside
// the retained tail.
func (e *Extractor) trim() {
	count := utf8.RuneCountInString(e.buffer)
	if count <= tailLimit {
		return
	}
	runes := []rune(e.buffer)
	e.offset += count - tailLimit
	e.buffer = string(runes[count-tailLimit:])
}
