package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page tree bounds. A legitimate tree is a few levels deep; anything past
// these is a loop or a decompression bomb.
const (
	maxPageTreeDepth = 64
	maxPageTreeNodes = 1 << 16
)

// ErrMalformedPDF is returned when a PDF opens but its structure cannot be
// walked safely.
var ErrMalformedPDF = errors.New("ingestion: malformed pdf")

// Extractor pulls plain text out of a file on disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// PDFExtractor concatenates the plain text of every page in page order.
// Layout and structure are not preserved.
type PDFExtractor struct{}

// Extract implements [Extractor]. It returns as soon as ctx is done, even
// if the parser is still working on the file.
func (PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := extractPDF(ctx, path)
		done <- outcome{text: text, err: err}
	}()

	select {
	case o := <-done:
		return o.text, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func extractPDF(ctx context.Context, path string) (text string, err error) {
	// The parser panics on some corrupt inputs.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrMalformedPDF, p)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages, err := pageLeaves(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		t, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i+1, err)
		}
		b.WriteString(t)
	}
	return b.String(), nil
}

// pageLeaves walks the page tree from the catalog and returns the leaf pages
// in document order. It replaces Reader.Page, which spins forever on a
// /Pages node whose /Count promises kids that are not there. The walk is
// bounded by depth and node count, and every leaf's /Parent chain is
// checked because resource lookup follows it without a bound.
func pageLeaves(r *pdf.Reader) ([]pdf.Page, error) {
	var (
		leaves  []pdf.Page
		visited int
	)

	var walk func(v pdf.Value, depth int) error
	walk = func(v pdf.Value, depth int) error {
		visited++
		if visited > maxPageTreeNodes {
			return fmt.Errorf("%w: page tree exceeds %d nodes", ErrMalformedPDF, maxPageTreeNodes)
		}
		if depth > maxPageTreeDepth {
			return fmt.Errorf("%w: page tree deeper than %d", ErrMalformedPDF, maxPageTreeDepth)
		}

		switch v.Key("Type").Name() {
		case "Page":
			if err := checkParents(v); err != nil {
				return err
			}
			leaves = append(leaves, pdf.Page{V: v})
		case "Pages":
			kids := v.Key("Kids")
			for i := 0; i < kids.Len(); i++ {
				if err := walk(kids.Index(i), depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(r.Trailer().Key("Root").Key("Pages"), 0); err != nil {
		return nil, err
	}
	if n := r.NumPage(); len(leaves) != n {
		return nil, fmt.Errorf("%w: page tree has %d pages, /Count says %d", ErrMalformedPDF, len(leaves), n)
	}
	return leaves, nil
}

// checkParents rejects a page whose /Parent chain loops.
func checkParents(page pdf.Value) error {
	depth := 0
	for p := page.Key("Parent"); !p.IsNull(); p = p.Key("Parent") {
		depth++
		if depth > maxPageTreeDepth {
			return fmt.Errorf("%w: /Parent chain deeper than %d", ErrMalformedPDF, maxPageTreeDepth)
		}
	}
	return nil
}
