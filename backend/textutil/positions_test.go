package textutil_test

import (
	"testing"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
)

const wellFormedList = `1 | The mind is identical to the brain | identity theory
2 | Mental states are functional states | functionalism
3 | Consciousness is irreducible | dualism`

func TestIsPositionList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want bool
	}{
		{"well formed", wellFormedList, true},
		{"plain prose", "This is an essay about the mind.\nIt has several paragraphs.", false},
		{"single line", "1 | only one | line", false},
		{"empty", "", false},
		{
			"majority well formed",
			"1 | a | b\n2 | c | d\nplain text line",
			true,
		},
		{
			"majority malformed",
			"1 | a | b\nplain line one\nplain line two",
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := textutil.IsPositionList(tc.text); got != tc.want {
				t.Errorf("IsPositionList = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParsePositionList(t *testing.T) {
	t.Parallel()

	positions, malformed := textutil.ParsePositionList(wellFormedList)
	if malformed != 0 {
		t.Errorf("malformed = %d, want 0", malformed)
	}
	if len(positions) != 3 {
		t.Fatalf("len(positions) = %d, want 3", len(positions))
	}
	if positions[0].Fields[1] != "The mind is identical to the brain" {
		t.Errorf("unexpected field: %q", positions[0].Fields[1])
	}
}

func TestParsePositionListSkipsMalformed(t *testing.T) {
	t.Parallel()

	text := "1 | a | b\nbroken line\n2 | c | d\nanother | broken\n3 | e | f"
	positions, malformed := textutil.ParsePositionList(text)

	if malformed != 2 {
		t.Errorf("malformed = %d, want 2", malformed)
	}
	if len(positions) != 3 {
		t.Fatalf("len(positions) = %d, want 3", len(positions))
	}
	// Malformed lines are dropped, never merged into a neighbor.
	for _, p := range positions {
		for _, f := range p.Fields {
			if f == "broken line" || f == "another" {
				t.Errorf("malformed content leaked into position fields: %v", p.Fields)
			}
		}
	}
}
