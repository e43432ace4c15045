// Package ids reads, enumerates and writes DiveMeets diver identifier lists.
package ids

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRange means a start/end range cannot be enumerated.
	ErrInvalidRange = errors.New("ids: invalid range")
	// ErrInvalidIdentifier means an identifier is not a string of decimal digits.
	ErrInvalidIdentifier = errors.New("ids: invalid identifier")
)

// Validate reports whether id is a non-empty string of ASCII digits.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
	}
	return nil
}

// ReadList reads a newline-delimited identifier list. Blank lines are skipped and
// surrounding whitespace is trimmed.
func ReadList(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		if err := Validate(id); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return out, nil
}

// ReadFile reads an identifier list from path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identifier list: %w", err)
	}
	defer f.Close()
	return ReadList(f)
}

// Range enumerates the identifiers in [start, end).
func Range(start, end int) ([]string, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out, nil
}

// WriteList writes one identifier per line.
func WriteList(w io.Writer, list []string) error {
	bw := bufio.NewWriter(w)
	for _, id := range list {
		if _, err := bw.WriteString(id + "\n"); err != nil {
			return fmt.Errorf("write identifiers: %w", err)
		}
	}
	return bw.Flush()
}
