package osc

import (
	"fmt"
	"regexp"
	"strings"
)

// patternChars are the characters that turn an address segment into a pattern.
const patternChars = "*?[]{}"

// segment is one compiled address pattern part. Literal parts are compared
// directly; everything else goes through an anchored regular expression.
type segment struct {
	literal string
	re      *regexp.Regexp
}

func (s segment) match(name string) bool {
	if s.re == nil {
		return s.literal == name
	}
	return s.re.MatchString(name)
}

// compilePattern splits an address pattern on '/' and compiles each part.
func compilePattern(pattern string) ([]segment, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("%w: %q must start with '/'", ErrInvalidAddress, pattern)
	}
	parts := strings.Split(pattern[1:], "/")
	segs := make([]segment, len(parts))
	for i, p := range parts {
		s, err := compileSegment(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
		}
		segs[i] = s
	}
	return segs, nil
}

// compileSegment translates one OSC pattern part into a regular expression:
// '?' is any single character, '*' any run of characters, "[a-z]" and "[!a-z]"
// (or "[^a-z]") character classes and "{foo,bar}" alternatives.
func compileSegment(part string) (segment, error) {
	if !strings.ContainsAny(part, patternChars) {
		return segment{literal: part}, nil
	}

	var sb strings.Builder
	sb.WriteString(`(?s)^`)
	for i := 0; i < len(part); i++ {
		switch c := part[i]; c {
		case '*':
			sb.WriteString(`[^/]*`)
		case '?':
			sb.WriteString(`[^/]`)
		case '[':
			end := strings.IndexByte(part[i+1:], ']')
			if end == -1 {
				return segment{}, fmt.Errorf("unclosed '[' at %d", i)
			}
			class, err := translateClass(part[i+1 : i+1+end])
			if err != nil {
				return segment{}, err
			}
			sb.WriteString(class)
			i += end + 1
		case '{':
			end := strings.IndexByte(part[i+1:], '}')
			if end == -1 {
				return segment{}, fmt.Errorf("unclosed '{' at %d", i)
			}
			alts := strings.Split(part[i+1:i+1+end], ",")
			sb.WriteString(`(?:`)
			for j, alt := range alts {
				if j > 0 {
					sb.WriteByte('|')
				}
				sb.WriteString(regexp.QuoteMeta(alt))
			}
			sb.WriteByte(')')
			i += end + 1
		case ']', '}':
			return segment{}, fmt.Errorf("unbalanced %q at %d", c, i)
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteByte('$')

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return segment{}, err
	}
	return segment{re: re}, nil
}

// translateClass converts the body of a bracket expression to a regexp class.
// A '-' between two characters is a range; at either end it is literal.
func translateClass(body string) (string, error) {
	var sb strings.Builder
	sb.WriteByte('[')
	if body != "" && (body[0] == '!' || body[0] == '^') {
		sb.WriteByte('^')
		body = body[1:]
	}
	if body == "" {
		return "", fmt.Errorf("empty character class")
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		if i+2 < len(body) && body[i+1] == '-' {
			hi := body[i+2]
			if hi < c {
				return "", fmt.Errorf("invalid range %c-%c", c, hi)
			}
			sb.WriteString(quoteClassChar(c))
			sb.WriteByte('-')
			sb.WriteString(quoteClassChar(hi))
			i += 2
			continue
		}
		sb.WriteString(quoteClassChar(c))
	}
	sb.WriteByte(']')
	return sb.String(), nil
}

func quoteClassChar(c byte) string {
	switch c {
	case '\\', ']', '[', '^', '-':
		return `\` + string(c)
	}
	return string(c)
}

// MatchAddress reports whether the address pattern matches the literal address.
// Each pattern part matches exactly one address part.
func MatchAddress(pattern, addr string) (bool, error) {
	segs, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}
	if addr == "" || addr[0] != '/' {
		return false, nil
	}
	parts := strings.Split(addr[1:], "/")
	if len(parts) != len(segs) {
		return false, nil
	}
	for i, s := range segs {
		if !s.match(parts[i]) {
			return false, nil
		}
	}
	return true, nil
}
