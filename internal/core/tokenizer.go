package core

import "strings"

// Delimiter separates fields in registry extracts.
const Delimiter = ';'

const quote = '"'

// SplitLine tokenizes one source line into its fields.
//
// Fields may be wrapped in double quotes; inside a quoted field the delimiter
// does not split and a doubled quote is a literal quote. Text following the
// closing quote up to the next delimiter is kept as-is, and a quote in the
// middle of an unquoted field is literal. The only error is a quoted field
// left open at end of line (ErrUnterminatedQuote). Field counts are not
// checked here.
func SplitLine(line string) ([]string, error) {
	fields := make([]string, 0, 64)
	var b strings.Builder

	i := 0
	for {
		b.Reset()

		if i < len(line) && line[i] == quote {
			// Quoted field.
			i++
			closed := false
			for i < len(line) {
				c := line[i]
				if c == quote {
					if i+1 < len(line) && line[i+1] == quote {
						b.WriteByte(quote)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(c)
				i++
			}
			if !closed {
				return nil, ErrUnterminatedQuote
			}
			// Trailing text after the closing quote belongs to the field.
			for i < len(line) && line[i] != Delimiter {
				b.WriteByte(line[i])
				i++
			}
		} else {
			start := i
			for i < len(line) && line[i] != Delimiter {
				i++
			}
			b.WriteString(line[start:i])
		}

		fields = append(fields, b.String())

		if i >= len(line) {
			return fields, nil
		}
		// Skip the delimiter; a trailing delimiter yields a final empty field.
		i++
	}
}

// JoinLine is the inverse of SplitLine. Fields containing the delimiter, a
// quote, or a line break are quoted and their quotes doubled.
func JoinLine(fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(Delimiter)
		}
		if needsQuoting(f) {
			b.WriteByte(quote)
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte(quote)
			continue
		}
		b.WriteString(f)
	}
	return b.String()
}

func needsQuoting(f string) bool {
	return strings.ContainsAny(f, `;"`+"\r\n")
}
