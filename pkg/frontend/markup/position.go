package markup

import (
	"sort"
	"strings"
)

// lineIndex maps byte offsets to 1-based line and column numbers.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (idx lineIndex) position(offset int) (line, column int) {
	line = sort.Search(len(idx), func(i int) bool { return idx[i] > offset })
	return line, offset - idx[line-1] + 1
}

// segment is a run of literal text or an expression body within a value.
type segment struct {
	text   string
	expr   bool
	offset int
}

// splitInterpolation cuts value into literal and `${…}` segments. `\${`
// produces a literal `${`. Offsets are relative to value.
func splitInterpolation(value string) ([]segment, *segmentError) {
	var (
		out []segment
		buf strings.Builder

		bufStart int
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, segment{text: buf.String(), offset: bufStart})
		buf.Reset()
	}

	i := 0
	for i < len(value) {
		if strings.HasPrefix(value[i:], `\${`) {
			if buf.Len() == 0 {
				bufStart = i
			}
			buf.WriteString("${")
			i += 3
			continue
		}
		if !strings.HasPrefix(value[i:], "${") {
			if buf.Len() == 0 {
				bufStart = i
			}
			buf.WriteByte(value[i])
			i++
			continue
		}

		end := expressionEnd(value, i+2)
		if end < 0 {
			return nil, &segmentError{offset: i, message: "unterminated expression"}
		}
		flush()
		out = append(out, segment{text: value[i+2 : end], expr: true, offset: i})
		i = end + 1
	}
	flush()
	return out, nil
}

// expressionEnd returns the index of the `}` closing an expression body that
// starts at from, skipping braces inside string literals.
func expressionEnd(value string, from int) int {
	var quote byte
	for i := from; i < len(value); i++ {
		ch := value[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '}':
			return i
		}
	}
	return -1
}

type segmentError struct {
	offset  int
	message string
}

func hasInterpolation(value string) bool {
	return strings.Contains(value, "${")
}
