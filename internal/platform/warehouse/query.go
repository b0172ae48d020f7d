package warehouse

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnboundParameter = errors.New("unbound query parameter")

// SqlQueryBuilder accumulates SQL text with :name placeholders and the values bound to them.
type SqlQueryBuilder struct {
	sql    strings.Builder
	params map[string]interface{}
}

func NewSqlQueryBuilder() *SqlQueryBuilder {
	return &SqlQueryBuilder{params: make(map[string]interface{})}
}

// Append adds SQL text, separated from earlier text by a newline.
func (qb *SqlQueryBuilder) Append(sql string) *SqlQueryBuilder {
	if qb.sql.Len() > 0 {
		qb.sql.WriteByte('\n')
	}
	qb.sql.WriteString(sql)
	return qb
}

// AddParameter binds a value to a named placeholder. Rebinding overwrites.
func (qb *SqlQueryBuilder) AddParameter(name string, value interface{}) *SqlQueryBuilder {
	qb.params[name] = value
	return qb
}

// Parameters returns the bound values by name.
func (qb *SqlQueryBuilder) Parameters() map[string]interface{} {
	return qb.params
}

func (qb *SqlQueryBuilder) String() string {
	return qb.sql.String()
}

// Compile rewrites :name placeholders to positional ? markers and returns the
// arguments in placeholder order. Placeholders inside quoted literals,
// identifiers and comments are left alone, as are "::" and ":=".
func (qb *SqlQueryBuilder) Compile() (string, []interface{}, error) {
	src := strings.TrimRight(strings.TrimSpace(qb.sql.String()), ";")
	var out strings.Builder
	out.Grow(len(src))
	var args []interface{}

	var quote byte
	for i := 0; i < len(src); i++ {
		ch := src[i]

		if quote != 0 {
			out.WriteByte(ch)
			if ch == '\\' && quote != '`' && i+1 < len(src) {
				i++
				out.WriteByte(src[i])
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}

		if end := commentEnd(src, i); end > i {
			out.WriteString(src[i:end])
			i = end - 1
			continue
		}

		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			out.WriteByte(ch)
		case ch == ':' && i+1 < len(src) && isNameStart(src[i+1]) && (i == 0 || src[i-1] != ':'):
			j := i + 1
			for j < len(src) && isNamePart(src[j]) {
				j++
			}
			name := src[i+1 : j]
			v, ok := qb.params[name]
			if !ok {
				return "", nil, fmt.Errorf("%w: %s", ErrUnboundParameter, name)
			}
			out.WriteByte('?')
			args = append(args, v)
			i = j - 1
		default:
			out.WriteByte(ch)
		}
	}
	return out.String(), args, nil
}

// commentEnd returns the index just past the comment starting at i, or i when
// none starts there. MySQL only treats "--" as a comment when followed by
// whitespace or the end of input.
func commentEnd(src string, i int) int {
	switch {
	case src[i] == '#':
		return lineEnd(src, i)
	case strings.HasPrefix(src[i:], "--") && (i+2 == len(src) || isSpace(src[i+2])):
		return lineEnd(src, i)
	case strings.HasPrefix(src[i:], "/*"):
		if n := strings.Index(src[i+2:], "*/"); n >= 0 {
			return i + 2 + n + 2
		}
		return len(src)
	}
	return i
}

func lineEnd(src string, i int) int {
	if n := strings.IndexByte(src[i:], '\n'); n >= 0 {
		return i + n
	}
	return len(src)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
