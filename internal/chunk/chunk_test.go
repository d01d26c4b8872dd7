package chunk

import (
	"strings"
	"testing"
)

func TestNewSplitter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		window  int
		overlap int
		wantErr bool
	}{
		{name: "valid", window: 512, overlap: 100, wantErr: false},
		{name: "zero overlap", window: 10, overlap: 0, wantErr: false},
		{name: "zero window", window: 0, overlap: 0, wantErr: true},
		{name: "negative window", window: -1, overlap: 0, wantErr: true},
		{name: "negative overlap", window: 10, overlap: -1, wantErr: true},
		{name: "overlap equals window", window: 10, overlap: 10, wantErr: true},
		{name: "overlap exceeds window", window: 10, overlap: 11, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.window, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSplitter(%d, %d) error = %v, wantErr %v", tt.window, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplit_AtWindowBoundary(t *testing.T) {
	s, err := NewSplitter(10, 3)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}

	// Exactly at the window: one chunk, untouched.
	exact := strings.Repeat("a", 10)
	chunks := s.Split(exact)
	if len(chunks) != 1 {
		t.Fatalf("Split(len=window) produced %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != exact {
		t.Errorf("Split(len=window) altered text: %q", chunks[0].Text)
	}

	// One over: at least two overlapping windows.
	over := strings.Repeat("a", 10) + "b"
	chunks = s.Split(over)
	if len(chunks) < 2 {
		t.Fatalf("Split(len=window+1) produced %d chunks, want >= 2", len(chunks))
	}
}

func TestSplit_OverlapLength(t *testing.T) {
	s, err := NewSplitter(10, 3)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}

	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := s.Split(text)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		cur := []rune(chunks[i].Text)
		tail := string(prev[len(prev)-3:])
		head := string(cur[:3])
		if tail != head {
			t.Errorf("chunks %d/%d overlap mismatch: tail %q head %q", i-1, i, tail, head)
		}
	}
}

func TestSplit_CoversAllText(t *testing.T) {
	s, err := NewSplitter(7, 2)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}

	text := "the quick brown fox jumps over the lazy dog"
	chunks := s.Split(text)

	// Stripping the overlap from every chunk after the first must
	// reconstruct the original text.
	var rebuilt strings.Builder
	for i, c := range chunks {
		runes := []rune(c.Text)
		if i == 0 {
			rebuilt.WriteString(c.Text)
			continue
		}
		rebuilt.WriteString(string(runes[2:]))
	}
	if rebuilt.String() != text {
		t.Errorf("chunks do not cover source: got %q want %q", rebuilt.String(), text)
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
	}
}

func TestSplit_MultiByteRunes(t *testing.T) {
	s, err := NewSplitter(4, 1)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}

	text := "日本語のテキスト分割"
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !strings.Contains(text, c.Text) {
			t.Errorf("chunk %d %q is not a substring of the source", i, c.Text)
		}
	}
}

func TestRecombine(t *testing.T) {
	chunks := []Chunk{
		{Text: "first", Index: 0},
		{Text: "second", Index: 1},
		{Text: "third", Index: 2},
	}
	got := Recombine(chunks)
	want := "first\n\nsecond\n\nthird"
	if got != want {
		t.Errorf("Recombine = %q, want %q", got, want)
	}

	if Recombine(nil) != "" {
		t.Errorf("Recombine(nil) should be empty")
	}
}
