package irc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Message is one parsed IRC protocol line.
//
// Wire layout: [:prefix] COMMAND [param ...] [:trailing]
// The trailing argument, when present, is the last element of Params.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// Nick returns the nick portion of the prefix (everything before ! or @),
// or the whole prefix when it carries no user/host part.
func (m Message) Nick() string {
	if i := strings.IndexAny(m.Prefix, "!@"); i >= 0 {
		return m.Prefix[:i]
	}
	return m.Prefix
}

// Param returns the i-th parameter or "" when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the final parameter or "".
func (m Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// ParseMessage parses a single protocol line without its CR/LF terminator.
// Commands are uppercased; numerics pass through as-is.
func ParseMessage(line string) (Message, error) {
	var m Message

	rest := line
	if strings.HasPrefix(rest, ":") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return Message{}, fmt.Errorf("irc: prefix without command: %q", line)
		}
		m.Prefix = rest[1:sp]
		rest = rest[sp+1:]
	}

	rest = strings.TrimLeft(rest, " ")
	if rest == "" {
		return Message{}, fmt.Errorf("irc: missing command: %q", line)
	}

	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		m.Command = rest[:sp]
		rest = rest[sp+1:]
	} else {
		m.Command = rest
		rest = ""
	}
	m.Command = strings.ToUpper(m.Command)

	for rest != "" {
		if strings.HasPrefix(rest, ":") {
			m.Params = append(m.Params, rest[1:])
			break
		}
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			m.Params = append(m.Params, rest)
			break
		}
		if sp > 0 {
			m.Params = append(m.Params, rest[:sp])
		}
		rest = rest[sp+1:]
	}

	return m, nil
}

// casefold lowercases a channel or nick name using RFC 1459 casemapping:
// ASCII letters fold normally and []\~ fold to {}|^.
func casefold(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == '[':
			b[i] = '{'
		case c == ']':
			b[i] = '}'
		case c == '\\':
			b[i] = '|'
		case c == '~':
			b[i] = '^'
		}
	}
	return string(b)
}

// equalFold reports whether two channel/nick names match under RFC 1459
// casemapping.
func equalFold(a, b string) bool { return casefold(a) == casefold(b) }

// maxLineLen caps a single protocol line. The RFC limit is 512 bytes; the
// slack covers servers with message tags or long hostmasks.
const maxLineLen = 1024

var errLineTooLong = errors.New("irc: line exceeds length limit")

// lineReader yields complete protocol lines from a byte stream. A read that
// ends mid-line stays buffered until the terminator arrives, so one protocol
// line split across several reads parses the same as a single delivery.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, maxLineLen)}
}

// ReadLine returns the next complete line without its terminator. An
// oversized line is consumed in full and reported as errLineTooLong, leaving
// the stream aligned on the next line.
func (lr *lineReader) ReadLine() (string, error) {
	line, err := lr.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > maxLineLen {
		return "", errLineTooLong
	}
	return strings.TrimRight(line, "\r\n"), nil
}
