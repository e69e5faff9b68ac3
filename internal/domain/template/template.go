// Package template renders answer templates with named placeholders.
//
// The grammar:
//
//	{name}   placeholder, name matches [A-Za-z_][A-Za-z0-9_]*
//	{{ / }}  literal brace
//
// Anything else involving a brace is a parse error. There are no
// expressions, conditionals or loops.
package template

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
)

// ErrMalformedTemplate is returned by Parse for text outside the grammar.
var ErrMalformedTemplate = errors.New("malformed template")

type segment struct {
	literal     string
	placeholder string
}

// Template is a parsed answer template. It is immutable and safe for
// concurrent use.
type Template struct {
	source   string
	segments []segment
	names    []string
}

// Parse validates text and splits it into literals and placeholders.
func Parse(text string) (*Template, error) {
	t := &Template{source: text}
	seen := make(map[string]bool)

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d", ErrMalformedTemplate, i)
			}
			name := text[i+1 : i+1+end]
			if !validName(name) {
				return nil, fmt.Errorf("%w: invalid placeholder %q at offset %d", ErrMalformedTemplate, name, i)
			}
			flush()
			t.segments = append(t.segments, segment{placeholder: name})
			if !seen[name] {
				seen[name] = true
				t.names = append(t.names, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unmatched '}' at offset %d", ErrMalformedTemplate, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustParse is Parse for templates known at compile time.
func MustParse(text string) *Template {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Placeholders returns placeholder names in order of first appearance.
func (t *Template) Placeholders() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Source returns the original template text.
func (t *Template) Source() string {
	return t.source
}

// Render substitutes every placeholder from facts. A placeholder with no
// value (or a nil value) fails with *entities.MissingContextKeyError and
// no partial text is returned.
func (t *Template) Render(facts entities.Context) (string, error) {
	var sb strings.Builder
	sb.Grow(len(t.source))
	for _, seg := range t.segments {
		if seg.placeholder == "" {
			sb.WriteString(seg.literal)
			continue
		}
		v, ok := facts[seg.placeholder]
		if !ok || v == nil {
			return "", &entities.MissingContextKeyError{Name: seg.placeholder}
		}
		sb.WriteString(FormatValue(v))
	}
	return sb.String(), nil
}

// Render parses and renders in one step.
func Render(text string, facts entities.Context) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}
	return t.Render(facts)
}

// FormatValue converts a context value to its canonical plain-text form.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
