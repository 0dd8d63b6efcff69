package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Parser reads Claude Code JSONL session files line by line, keeping the
// verbatim line alongside the decoded entry.
type Parser struct {
	scanner *bufio.Scanner
	lineNum int
	errors  []error
}

// NewParser creates a parser from an io.Reader.
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: deck.NewScannerWithCapacity(r, 128*1024, deck.MaxLineCapacity)}
}

// NewParserFromFile creates a parser from a file path.
func NewParserFromFile(path string) (*Parser, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open session file: %w", err)
	}
	return NewParser(f), f, nil
}

// Next reads the next entry. It returns the decoded entry plus the raw line
// it came from, or nil, nil, nil at EOF. Malformed lines are recorded in
// Errors and skipped, never fatal.
func (p *Parser) Next() (*Entry, []byte, error) {
	for p.scanner.Scan() {
		p.lineNum++
		line := p.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			p.errors = append(p.errors, fmt.Errorf("line %d: %w", p.lineNum, err))
			continue
		}

		raw := make([]byte, len(line))
		copy(raw, line)
		return &entry, raw, nil
	}

	if err := p.scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanner error: %w", err)
	}
	return nil, nil, nil // EOF
}

// Errors returns all parse errors encountered so far.
func (p *Parser) Errors() []error {
	return p.errors
}

// LineNum returns the current line number.
func (p *Parser) LineNum() int {
	return p.lineNum
}
