package citation

import (
	"reflect"
	"testing"

	"github.com/citedraft/citedraft/internal/retrieval"
)

func testSources(n int) []retrieval.Chunk {
	out := make([]retrieval.Chunk, n)
	for i := range out {
		out[i] = retrieval.Chunk{
			ID:           string(rune('a' + i)),
			DocumentID:   "doc-" + string(rune('a'+i)),
			DocumentName: "Document " + string(rune('A'+i)),
			Similarity:   0.9 - 0.1*float64(i),
		}
	}
	return out
}

func feed(e *Extractor, chunks ...string) []Draft {
	var all []Draft
	for _, c := range chunks {
		all = append(all, e.Feed(c)...)
	}
	return all
}

func TestExtractor_SingleChunk(t *testing.T) {
	t.Parallel()

	sources := testSources(2)
	e := NewExtractor(sources)

	drafts := e.Feed("The answer [1] is supported [2].")
	if len(drafts) != 2 {
		t.Fatalf("Feed() returned %d drafts, want 2", len(drafts))
	}

	if drafts[0].Number != 1 || drafts[0].Source == nil || drafts[0].Source.ID != "a" {
		t.Errorf("draft 0 = %+v, want number 1 bound to source a", drafts[0])
	}
	if drafts[0].Start != 11 || drafts[0].End != 14 {
		t.Errorf("draft 0 offsets = [%d, %d), want [11, 14)", drafts[0].Start, drafts[0].End)
	}
	if drafts[1].Number != 2 || drafts[1].Source == nil || drafts[1].Source.ID != "b" {
		t.Errorf("draft 1 = %+v, want number 2 bound to source b", drafts[1])
	}
}

func TestExtractor_FirstMentionBinding(t *testing.T) {
	t.Parallel()

	// Numbers bind to sources by order of first mention. The model citing
	// [3] first makes [3] the first source; re-citing reuses the binding.
	e := NewExtractor(testSources(2))
	drafts := feed(e, "Claim [3], counterpoint [1], again [3].")

	if len(drafts) != 3 {
		t.Fatalf("got %d drafts, want 3", len(drafts))
	}
	if drafts[0].Source == nil || drafts[0].Source.ID != "a" {
		t.Errorf("first mention of [3] bound to %v, want source a", drafts[0].Source)
	}
	if drafts[1].Source == nil || drafts[1].Source.ID != "b" {
		t.Errorf("first mention of [1] bound to %v, want source b", drafts[1].Source)
	}
	if drafts[2].Source != drafts[0].Source {
		t.Errorf("re-cited [3] bound to %v, want same source as first mention", drafts[2].Source)
	}
}

func TestExtractor_Orphans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sources int
		input   string
		numbers []int
		orphans []bool
	}{
		{
			name:    "number beyond source count",
			sources: 2,
			input:   "See [7].",
			numbers: []int{7},
			orphans: []bool{true},
		},
		{
			name:    "distinct number after all sources bound",
			sources: 2,
			input:   "[1] and [2] and [4]",
			numbers: []int{1, 2, 4},
			orphans: []bool{false, false, true},
		},
		{
			name:    "zero is never a citation target",
			sources: 2,
			input:   "[0] then [1]",
			numbers: []int{0, 1},
			orphans: []bool{true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			drafts := NewExtractor(testSources(tt.sources)).Feed(tt.input)
			if len(drafts) != len(tt.numbers) {
				t.Fatalf("got %d drafts, want %d", len(drafts), len(tt.numbers))
			}
			for i, d := range drafts {
				if d.Number != tt.numbers[i] {
					t.Errorf("draft %d number = %d, want %d", i, d.Number, tt.numbers[i])
				}
				if (d.Source == nil) != tt.orphans[i] {
					t.Errorf("draft %d orphan = %v, want %v", i, d.Source == nil, tt.orphans[i])
				}
			}
		})
	}
}

func TestExtractor_NonMarkers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"seven digits exceeds marker length", "see [1234567] for details"},
		{"letters inside brackets", "array[i] access"},
		{"empty brackets", "[] nothing"},
		{"unclosed bracket at end of stream", "trailing [12"},
		{"negative number", "[-1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if drafts := NewExtractor(testSources(3)).Feed(tt.input); len(drafts) != 0 {
				t.Errorf("Feed(%q) = %d drafts, want 0", tt.input, len(drafts))
			}
		})
	}
}

func TestExtractor_SplitInvariance(t *testing.T) {
	t.Parallel()

	input := "Intro [1] middle té←xt [2] then [1] again and [999999] done."

	splits := map[string][]string{
		"single chunk":    {input},
		"rune by rune":    splitRunes(input, 1),
		"pairs":           splitRunes(input, 2),
		"triples":         splitRunes(input, 3),
		"marker boundary": {"Intro [", "1", "] middle té←xt [2", "] then [1] again and [99", "9999] done."},
	}

	want := feed(NewExtractor(testSources(2)), input)

	for name, chunks := range splits {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := feed(NewExtractor(testSources(2)), chunks...)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("chunking %q changed drafts:\ngot  %+v\nwant %+v", name, got, want)
			}
		})
	}
}

func TestExtractor_OffsetsAreRunes(t *testing.T) {
	t.Parallel()

	// Multibyte runes before the marker must not inflate offsets.
	e := NewExtractor(testSources(1))
	drafts := e.Feed("héllo wörld [1]")
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	if drafts[0].Start != 12 || drafts[0].End != 15 {
		t.Errorf("offsets = [%d, %d), want [12, 15)", drafts[0].Start, drafts[0].End)
	}
}

func TestExtractor_OffsetsAcrossChunks(t *testing.T) {
	t.Parallel()

	e := NewExtractor(testSources(2))
	first := e.Feed("0123456789 [1]")
	second := e.Feed(" more text [2]")

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d drafts, want 1 and 1", len(first), len(second))
	}
	if first[0].Start != 11 || first[0].End != 14 {
		t.Errorf("first offsets = [%d, %d), want [11, 14)", first[0].Start, first[0].End)
	}
	if second[0].Start != 25 || second[0].End != 28 {
		t.Errorf("second offsets = [%d, %d), want [25, 28)", second[0].Start, second[0].End)
	}
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func FuzzExtractor_SplitInvariance(f *testing.F) {
	f.Add("plain [1] text [2]", uint8(1))
	f.Add("no markers here", uint8(3))
	f.Add("[999999][1000000]", uint8(2))
	f.Add("edge [12", uint8(1))
	f.Add("unicode ↑ [3] ↓", uint8(2))

	f.Fuzz(func(t *testing.T, input string, size uint8) {
		if size == 0 {
			size = 1
		}

		want := feed(NewExtractor(testSources(3)), input)
		got := feed(NewExtractor(testSources(3)), splitRunes(input, int(size))...)

		if !reflect.DeepEqual(got, want) {
			t.Errorf("chunk size %d changed drafts for %q:\ngot  %+v\nwant %+v", size, input, got, want)
		}
	})
}
