package front

import (
	"bytes"
	"strconv"

	"tlog.app/go/errors"
)

type (
	token   any
	punct   string
	ident   string
	number  int64
	str     string
	comment string
)

func (p *Parser) token(b []byte, st int) (t token, i int, err error) {
	st = skipSpaces(b, st)
	i = st

	if i == len(b) {
		return nil, i, nil
	}

	switch c := b[i]; c {
	case '(', ')', '{', '}', '[', ']', ',', ':', ';', '@', '+', '-', '*', '%', '^':
		return punct(b[i : i+1]), i + 1, nil
	case '/':
		if i+1 < len(b) && b[i+1] == '/' {
			i = skipLine(b, i)

			return comment(b[st:i]), i, nil
		}

		return punct(b[i : i+1]), i + 1, nil
	case '=', '!', '<', '>':
		if i+1 < len(b) && b[i+1] == '=' {
			return punct(b[i : i+2]), i + 2, nil
		}

		if c == '!' {
			return nil, i, errors.New("unexpected %q", c)
		}

		return punct(b[i : i+1]), i + 1, nil
	case '"':
		i = skipString(b, i+1)
		if i > len(b) {
			return nil, st, errors.New("unterminated string")
		}

		s, err := strconv.Unquote(string(b[st:i]))
		if err != nil {
			return nil, st, errors.Wrap(err, "string")
		}

		return str(s), i, nil
	default:
		if c >= '0' && c <= '9' {
			i = skipIdent(b, i+1)

			v, err := strconv.ParseInt(string(b[st:i]), 0, 64)
			if err != nil {
				return nil, st, errors.Wrap(err, "number")
			}

			return number(v), i, nil
		}

		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_' {
			i = skipIdent(b, i+1)

			return ident(b[st:i]), i, nil
		}

		return nil, i, errors.New("unsupported token: %q", c)
	}
}

// next returns the next meaningful token skipping comments.
func (p *Parser) next() (t token, err error) {
	for {
		t, p.i, err = p.token(p.b, p.i)
		if err != nil {
			return nil, p.errorf(err)
		}

		if _, ok := t.(comment); !ok {
			return t, nil
		}
	}
}

func (p *Parser) peek() (token, error) {
	i := p.i
	defer func() { p.i = i }()

	return p.next()
}

func (p *Parser) expect(want token) error {
	t, err := p.next()
	if err != nil {
		return err
	}

	if t != want {
		return p.errorf(errors.New("expected %v, got %v", want, t))
	}

	return nil
}

func (p *Parser) ident() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}

	id, ok := t.(ident)
	if !ok {
		return "", p.errorf(errors.New("identifier expected, got %v", t))
	}

	return string(id), nil
}

func (p *Parser) errorf(err error) error {
	line := 1 + bytes.Count(p.b[:p.i], []byte{'\n'})

	return errors.Wrap(err, "%s:%d", p.name, line)
}

func skipSpaces(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}

		break
	}

	return i
}

func skipIdent(b []byte, i int) int {
	for i < len(b) && (b[i] == '_' ||
		b[i] >= 'A' && b[i] <= 'Z' ||
		b[i] >= 'a' && b[i] <= 'z' ||
		b[i] >= '0' && b[i] <= '9') {
		i++
	}

	return i
}

func skipLine(b []byte, i int) int {
	for i < len(b) && b[i] != '\n' {
		i++
	}

	return i
}

// skipString returns the index after the closing quote or len(b)+1.
func skipString(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		case '\n':
			return len(b) + 1
		default:
			i++
		}
	}

	return len(b) + 1
}
