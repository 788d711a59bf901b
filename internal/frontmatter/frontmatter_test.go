package frontmatter_test

import (
	"bytes"
	"errors"
	"testing"

	"orchestra/internal/frontmatter"
)

func TestSplitSeparatesHeaderAndBody(t *testing.T) {
	doc := []byte("---\nmodel: llama3\nstatus: pending\n---\nSummarise the report.\n\n- keep it short\n")
	header, body, err := frontmatter.Split(doc)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if string(header) != "model: llama3\nstatus: pending\n" {
		t.Fatalf("unexpected header %q", header)
	}
	if string(body) != "Summarise the report.\n\n- keep it short\n" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSplitWithoutHeader(t *testing.T) {
	doc := []byte("Just a body\n---\nwith a rule\n")
	header, body, err := frontmatter.Split(doc)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if header != nil {
		t.Fatalf("expected no header, got %q", header)
	}
	if !bytes.Equal(body, doc) {
		t.Fatalf("expected body to be the whole document, got %q", body)
	}
}

func TestSplitHandlesCRLFAndEmptyBody(t *testing.T) {
	header, body, err := frontmatter.Split([]byte("---\r\nstatus: pending\r\n---\r\n"))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if string(header) != "status: pending\r\n" {
		t.Fatalf("unexpected header %q", header)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty body, got %q", body)
	}

	header, body, err = frontmatter.Split([]byte("---\n---"))
	if err != nil || len(header) != 0 || len(body) != 0 {
		t.Fatalf("expected empty header and body, got %q %q %v", header, body, err)
	}
}

func TestSplitUnterminated(t *testing.T) {
	if _, _, err := frontmatter.Split([]byte("---\nstatus: pending\nno closing line\n")); !errors.Is(err, frontmatter.ErrUnterminated) {
		t.Fatalf("expected ErrUnterminated, got %v", err)
	}
}

func TestJoinRoundTripPreservesBody(t *testing.T) {
	bodies := []string{
		"",
		"plain",
		"trailing newline\n",
		"---\nlooks like a header\n---\n",
		"  leading spaces and\r\nCRLF\r\n\n\n",
		"unicode: héllo 世界\n",
	}
	for _, body := range bodies {
		doc := frontmatter.Join([]byte("status: pending"), []byte(body))
		_, got, err := frontmatter.Split(doc)
		if err != nil {
			t.Fatalf("Split(%q): %v", doc, err)
		}
		if string(got) != body {
			t.Fatalf("body changed: got %q want %q", got, body)
		}
	}
}
