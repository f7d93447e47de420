package npy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// The header is a Python literal. Only the subset NumPy emits is accepted:
// strings, integers, True/False/None, tuples, lists and dicts.

const maxLiteralDepth = 32

type literalKind uint8

const (
	litString literalKind = iota + 1
	litInt
	litBool
	litNone
	litTuple
	litList
	litDict
)

func (k literalKind) String() string {
	switch k {
	case litString:
		return "string"
	case litInt:
		return "integer"
	case litBool:
		return "boolean"
	case litNone:
		return "None"
	case litTuple:
		return "tuple"
	case litList:
		return "list"
	case litDict:
		return "dict"
	default:
		return "unknown"
	}
}

type literal struct {
	kind literalKind

	str string
	b   bool

	// Integers keep their decimal text; num is only meaningful when fits
	// is set.
	num  int64
	fits bool
	neg  bool

	items []literal // tuple and list elements, dict keys and values interleaved
}

type literalParser struct {
	s     string
	pos   int
	depth int
}

func parseLiteral(s string) (literal, error) {
	p := &literalParser{s: s}
	v, err := p.value()
	if err != nil {
		return literal{}, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return literal{}, p.errorf("unexpected %q after literal", p.s[p.pos:min(p.pos+8, len(p.s))])
	}
	return v, nil
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrMalformedHeader, p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

func (p *literalParser) value() (literal, error) {
	c, ok := p.peek()
	if !ok {
		return literal{}, p.errorf("unexpected end of header")
	}
	switch {
	case c == '{':
		return p.container('{', '}', litDict)
	case c == '(':
		return p.container('(', ')', litTuple)
	case c == '[':
		return p.container('[', ']', litList)
	case c == '\'' || c == '"':
		return p.str()
	case (c == 'u' || c == 'U') && p.pos+1 < len(p.s) && (p.s[p.pos+1] == '\'' || p.s[p.pos+1] == '"'):
		p.pos++
		return p.str()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.integer()
	case isIdentStart(c):
		return p.ident()
	default:
		return literal{}, p.errorf("unexpected character %q", c)
	}
}

func (p *literalParser) container(open, closing byte, kind literalKind) (literal, error) {
	p.depth++
	if p.depth > maxLiteralDepth {
		return literal{}, p.errorf("nesting deeper than %d", maxLiteralDepth)
	}
	defer func() { p.depth-- }()

	p.pos++ // open
	out := literal{kind: kind}
	sawComma := false
	for {
		c, ok := p.peek()
		if !ok {
			return literal{}, p.errorf("unterminated %s", kind)
		}
		if c == closing {
			p.pos++
			break
		}
		if len(out.items) > 0 && !sawComma {
			return literal{}, p.errorf("expected ',' or %q", closing)
		}
		v, err := p.value()
		if err != nil {
			return literal{}, err
		}
		out.items = append(out.items, v)
		if kind == litDict {
			if c, ok := p.peek(); !ok || c != ':' {
				return literal{}, p.errorf("expected ':' after dict key")
			}
			p.pos++
			v, err := p.value()
			if err != nil {
				return literal{}, err
			}
			out.items = append(out.items, v)
		}
		sawComma = false
		if c, ok := p.peek(); ok && c == ',' {
			p.pos++
			sawComma = true
		}
	}
	// "(x)" is a parenthesised value, not a tuple.
	if kind == litTuple && len(out.items) == 1 && !sawComma {
		return out.items[0], nil
	}
	return out, nil
}

func (p *literalParser) str() (literal, error) {
	quote := p.s[p.pos]
	p.pos++
	var sb strings.Builder
	for {
		if p.pos >= len(p.s) {
			return literal{}, p.errorf("unterminated string")
		}
		c := p.s[p.pos]
		switch {
		case c == quote:
			p.pos++
			return literal{kind: litString, str: sb.String()}, nil
		case c == '\n':
			return literal{}, p.errorf("newline in string")
		case c == '\\':
			if err := p.escape(&sb); err != nil {
				return literal{}, err
			}
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
}

func (p *literalParser) escape(sb *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.s) {
		return p.errorf("unterminated escape")
	}
	c := p.s[p.pos]
	p.pos++
	switch c {
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case 'x', 'u', 'U':
		n := 2
		switch c {
		case 'u':
			n = 4
		case 'U':
			n = 8
		}
		if p.pos+n > len(p.s) {
			return p.errorf("short \\%c escape", c)
		}
		r, err := strconv.ParseUint(p.s[p.pos:p.pos+n], 16, 32)
		if err != nil || !utf8.ValidRune(rune(r)) {
			return p.errorf("bad \\%c escape", c)
		}
		p.pos += n
		sb.WriteRune(rune(r))
	default:
		// Unknown escapes keep their backslash.
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func (p *literalParser) integer() (literal, error) {
	start := p.pos
	out := literal{kind: litInt}
	if c := p.s[p.pos]; c == '-' || c == '+' {
		out.neg = c == '-'
		p.pos++
	}
	digits := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == digits {
		return literal{}, p.errorf("bad integer %q", p.s[start:p.pos])
	}
	text := p.s[start:p.pos]
	// Headers written by Python 2 carry a long suffix.
	if p.pos < len(p.s) && (p.s[p.pos] == 'L' || p.s[p.pos] == 'l') {
		p.pos++
	}
	if p.pos < len(p.s) && (isIdentStart(p.s[p.pos]) || p.s[p.pos] == '.') {
		return literal{}, p.errorf("bad integer %q", p.s[start:p.pos+1])
	}
	n, err := strconv.ParseInt(text, 10, 64)
	switch {
	case err == nil:
		out.num, out.fits = n, true
	case errors.Is(err, strconv.ErrRange):
		out.fits = false
	default:
		return literal{}, p.errorf("bad integer %q", text)
	}
	return out, nil
}

func (p *literalParser) ident() (literal, error) {
	start := p.pos
	for p.pos < len(p.s) && (isIdentStart(p.s[p.pos]) || (p.s[p.pos] >= '0' && p.s[p.pos] <= '9')) {
		p.pos++
	}
	switch word := p.s[start:p.pos]; word {
	case "True":
		return literal{kind: litBool, b: true}, nil
	case "False":
		return literal{kind: litBool}, nil
	case "None":
		return literal{kind: litNone}, nil
	default:
		p.pos = start
		return literal{}, p.errorf("unexpected name %q", word)
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// quoteLiteral renders s as a single-quoted Python string.
func quoteLiteral(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\', '\'':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
