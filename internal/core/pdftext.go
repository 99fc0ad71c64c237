package core

import (
	"bytes"
	"strconv"
	"strings"
)

// decodeContentStream pulls the text drawn by a PDF page content stream. It
// understands the text showing operators (Tj, TJ, ' and ") and treats line
// movement operators as line breaks. Glyphs from fonts with custom encodings
// come out as their raw byte values.
func decodeContentStream(data []byte) string {
	var (
		out      strings.Builder
		operands []string
		inArray  bool
	)

	newline := func() {
		s := out.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}

	i := 0
	for i < len(data) {
		ch := data[i]
		switch {
		case ch == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case ch == '(':
			s, n := readLiteralString(data[i:])
			operands = append(operands, latin1(s))
			i += n
		case ch == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case ch == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case ch == '<':
			s, n := readHexString(data[i:])
			operands = append(operands, latin1(s))
			i += n
		case ch == '[':
			inArray = true
			i++
		case ch == ']':
			inArray = false
			i++
		case isPDFSpace(ch) || ch == '{' || ch == '}' || ch == '/':
			if ch == '/' {
				// skip the name token
				i++
				for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelimiter(data[i]) {
					i++
				}
				continue
			}
			i++
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelimiter(data[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			token := string(data[start:i])

			if num, err := strconv.ParseFloat(token, 64); err == nil {
				// large negative kerning inside TJ arrays separates words
				if inArray && num <= -200 {
					operands = append(operands, " ")
				}
				continue
			}

			switch token {
			case "Tj", "TJ":
				out.WriteString(strings.Join(operands, ""))
			case "'", "\"":
				newline()
				out.WriteString(strings.Join(operands, ""))
			case "T*", "Td", "TD", "ET":
				newline()
			case "ID":
				// inline image data runs until EI
				if end := bytes.Index(data[i:], []byte("EI")); end >= 0 {
					i += end + 2
				} else {
					i = len(data)
				}
			}
			operands = operands[:0]
		}
	}
	return out.String()
}

// latin1 widens single-byte glyph codes to runes. Standard-encoded fonts agree
// with Latin-1 for the printable range.
func latin1(s string) string {
	runes := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		runes[i] = rune(s[i])
	}
	return string(runes)
}

func isPDFSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteralString reads a parenthesised string starting at data[0] and
// returns its decoded value and the number of bytes consumed.
func readLiteralString(data []byte) (string, int) {
	var b strings.Builder
	depth := 0
	i := 0
	for i < len(data) {
		ch := data[i]
		switch ch {
		case '(':
			if depth > 0 {
				b.WriteByte(ch)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(ch)
		case '\\':
			i++
			if i >= len(data) {
				return b.String(), i
			}
			esc := data[i]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '\r', '\n':
				// line continuation
				if esc == '\r' && i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			default:
				if esc >= '0' && esc <= '7' {
					val := 0
					n := 0
					for n < 3 && i < len(data) && data[i] >= '0' && data[i] <= '7' {
						val = val*8 + int(data[i]-'0')
						i++
						n++
					}
					i--
					b.WriteByte(byte(val))
				} else {
					b.WriteByte(esc)
				}
			}
		default:
			b.WriteByte(ch)
		}
		i++
	}
	return b.String(), i
}

// readHexString reads a <...> string starting at data[0].
func readHexString(data []byte) (string, int) {
	end := bytes.IndexByte(data, '>')
	if end < 0 {
		return "", len(data)
	}
	var digits []byte
	for _, ch := range data[1:end] {
		if !isPDFSpace(ch) {
			digits = append(digits, ch)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for j := 0; j+1 < len(digits); j += 2 {
		v, err := strconv.ParseUint(string(digits[j:j+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return string(out), end + 1
}
