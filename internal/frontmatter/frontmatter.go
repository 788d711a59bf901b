// Package frontmatter splits markdown documents into a delimited metadata
// header and a body, and joins them back without touching the body bytes.
package frontmatter

import (
	"bytes"
	"errors"
)

const delimiter = "---"

// ErrUnterminated is returned when a header opens but never closes.
var ErrUnterminated = errors.New("front matter: missing closing delimiter")

// Split separates data into header and body. A document that does not start
// with a delimiter line has no header. The body is returned exactly as stored.
func Split(data []byte) (header, body []byte, err error) {
	first, rest, ok := cutLine(data)
	if !ok || !isDelimiter(first) {
		return nil, data, nil
	}
	offset := len(data) - len(rest)
	for len(rest) > 0 {
		line, next, _ := cutLine(rest)
		if isDelimiter(line) {
			end := len(data) - len(rest)
			return data[offset:end], next, nil
		}
		rest = next
	}
	return nil, nil, ErrUnterminated
}

// Join assembles a document from header and body. Split(Join(h, b)) returns b
// unchanged.
func Join(header, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(header) + len(body) + 2*len(delimiter) + 2)
	buf.WriteString(delimiter)
	buf.WriteByte('\n')
	buf.Write(header)
	if len(header) > 0 && header[len(header)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(delimiter)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// cutLine returns the first line without its terminator, the remainder after
// the terminator, and whether a terminator or final line was found.
func cutLine(data []byte) (line, rest []byte, ok bool) {
	if len(data) == 0 {
		return nil, nil, false
	}
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return data, nil, true
	}
	return data[:idx], data[idx+1:], true
}

func isDelimiter(line []byte) bool {
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(bytes.TrimRight(line, " \t")) == delimiter
}
