package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(500, 50, 0)
	text := "Une seule phrase courte."
	pieces := s.Split(text)
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].Text != text {
		t.Fatalf("expected piece equal to input, got %q", pieces[0].Text)
	}
}

func TestSplitLongTextOverlaps(t *testing.T) {
	s := NewSplitter(200, 40, 0)
	sentence := "La banque traite votre dossier dans les meilleurs delais. "
	text := strings.Repeat(sentence, 20)

	pieces := s.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i := 1; i < len(pieces); i++ {
		if pieces[i].Start >= pieces[i-1].End {
			t.Fatalf("pieces %d and %d do not overlap: end=%d next start=%d",
				i-1, i, pieces[i-1].End, pieces[i].Start)
		}
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	s := NewSplitter(80, 10, 0)
	text := "Premiere phrase qui occupe un certain nombre de caracteres utiles. Seconde phrase qui continue bien au dela de la limite configuree pour le decoupage."

	pieces := s.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("expected at least 2 pieces, got %d", len(pieces))
	}
	if !strings.HasSuffix(pieces[0].Text, "utiles.") {
		t.Fatalf("expected first piece to end at sentence boundary, got %q", pieces[0].Text)
	}
}

func TestSplitDiscardsTinyChunks(t *testing.T) {
	s := NewSplitter(500, 50, 20)
	pieces := s.Split("court")
	if len(pieces) != 0 {
		t.Fatalf("expected tiny text to be discarded, got %d pieces", len(pieces))
	}
}

func TestSplitCleansWhitespace(t *testing.T) {
	s := NewSplitter(500, 50, 0)
	pieces := s.Split("a\n\n\n\nb  avec   espaces")
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if strings.Contains(pieces[0].Text, "\n\n\n") || strings.Contains(pieces[0].Text, "  ") {
		t.Fatalf("expected cleaned text, got %q", pieces[0].Text)
	}
}

func TestSplitEarlyBoundaryKeepsForwardProgress(t *testing.T) {
	// A sentence boundary right at the lookback window start must not win
	// the cut: with chunk size at or below the lookback it would place the
	// next start before the current one.
	s := NewSplitter(80, 40, 0)
	text := "zz. B" + strings.Repeat("x", 300)

	pieces := s.Split(text)
	if len(pieces) == 0 {
		t.Fatalf("expected pieces, got none")
	}
	for i, p := range pieces {
		if p.End <= p.Start {
			t.Fatalf("piece %d has no extent: start=%d end=%d", i, p.Start, p.End)
		}
		if i > 0 && p.Start <= pieces[i-1].Start {
			t.Fatalf("piece %d does not advance: start=%d previous=%d",
				i, p.Start, pieces[i-1].Start)
		}
	}
	if last := pieces[len(pieces)-1]; last.End != len([]rune(text)) {
		t.Fatalf("final piece ends at %d, want %d", last.End, len([]rune(text)))
	}
}
