package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"kbapi/internal/model"
)

// PDF extracts the text shown by page content streams. Pages are separated
// by a blank line. Scanned PDFs without a text layer yield empty text.
type PDF struct {
	conf *pdfmodel.Configuration
}

func NewPDF() *PDF {
	pdfmodel.ConfigPath = "disable"
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return &PDF{conf: conf}
}

func (*PDF) Kind() Kind { return KindPDF }

func (p *PDF) Extract(ctx context.Context, r io.Reader) (text string, err error) {
	data, err := readAll(ctx, r)
	if err != nil {
		return "", err
	}

	// pdfcpu panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: pdf parser: %v", model.ErrExtractionFailed, rec)
		}
	}()

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), p.conf)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf: %v", model.ErrExtractionFailed, err)
	}

	pages := make([]string, 0, pctx.PageCount)
	for nr := 1; nr <= pctx.PageCount; nr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		cr, err := pdfcpu.ExtractPageContent(pctx, nr)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", model.ErrExtractionFailed, nr, err)
		}
		if cr == nil {
			continue
		}
		content, err := io.ReadAll(cr)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", model.ErrExtractionFailed, nr, err)
		}
		fonts, err := pageFonts(pctx.XRefTable, nr)
		if err != nil {
			return "", fmt.Errorf("%w: page %d fonts: %v", model.ErrExtractionFailed, nr, err)
		}
		t, err := contentText(content, fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", nr, err)
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

type operand struct {
	name  string
	str   []byte
	num   float64
	isStr bool
	isNum bool
	arr   []operand
}

// contentText interprets the text showing operators (Tj, TJ, ' and ") of a
// decoded content stream. Positioning operators only contribute line breaks.
// Strings are decoded with the font selected by Tf; text shown with a
// composite font that has no ToUnicode map fails with ErrExtractionFailed.
func contentText(content []byte, fonts map[string]*pdfFont) (string, error) {
	s := &scanner{src: content}
	var out strings.Builder
	var stack []operand
	var arrays [][]operand
	var fontName string
	var font *pdfFont

	push := func(o operand) {
		if n := len(arrays); n > 0 {
			arrays[n-1] = append(arrays[n-1], o)
			return
		}
		stack = append(stack, o)
	}
	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}
	show := func(b []byte) error {
		if font.unmapped() {
			return fmt.Errorf("%w: font %s has no ToUnicode map", model.ErrExtractionFailed, fontName)
		}
		out.WriteString(font.decode(b))
		return nil
	}
	lastString := func() []byte {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].isStr {
				return stack[i].str
			}
		}
		return nil
	}

	for {
		kind, tok := s.next()
		switch kind {
		case tokEOF:
			return out.String(), nil
		case tokName:
			push(operand{name: string(tok)})
		case tokString:
			push(operand{str: tok, isStr: true})
		case tokNumber:
			f, _ := strconv.ParseFloat(string(tok), 64)
			push(operand{num: f, isNum: true})
		case tokArrayStart:
			arrays = append(arrays, nil)
		case tokArrayEnd:
			if n := len(arrays); n > 0 {
				arr := arrays[n-1]
				arrays = arrays[:n-1]
				push(operand{arr: arr})
			}
		case tokOther:
			push(operand{})
		case tokOperator:
			var err error
			switch string(tok) {
			case "Tf":
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i].name != "" {
						fontName, font = stack[i].name, fonts[stack[i].name]
						break
					}
				}
			case "Tj":
				err = show(lastString())
			case "'", `"`:
				newline()
				err = show(lastString())
			case "TJ":
				if n := len(stack); n > 0 {
					for _, el := range stack[n-1].arr {
						if err != nil {
							break
						}
						switch {
						case el.isStr:
							err = show(el.str)
						case el.isNum && el.num < -200:
							out.WriteByte(' ')
						}
					}
				}
			case "T*", "ET":
				newline()
			case "Td", "TD":
				if n := len(stack); n >= 2 && stack[n-1].isNum && stack[n-1].num != 0 {
					newline()
				}
			case "ID":
				s.skipInlineImage()
			}
			if err != nil {
				return "", err
			}
			stack = stack[:0]
			arrays = arrays[:0]
		}
	}
}

// decodePDFString maps string bytes to text. UTF-16BE strings carry a BOM;
// everything else is treated as a single-byte encoding.
func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return decodeUTF16(b[2:], true)
	}
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\t' || c == '\n':
			sb.WriteByte(' ')
		case c < 0x20:
		default:
			sb.WriteRune(rune(c))
		}
	}
	return sb.String()
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokArrayStart
	tokArrayEnd
	tokOperator
	tokName
	tokOther
)

type scanner struct {
	src []byte
	pos int
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (s *scanner) next() (tokenKind, []byte) {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pos++
			return tokString, s.literal()
		case c == '<':
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == '<' {
				s.pos += 2
				return tokOther, nil
			}
			s.pos++
			return tokString, s.hex()
		case c == '>':
			s.pos++
			if s.pos < len(s.src) && s.src[s.pos] == '>' {
				s.pos++
			}
			return tokOther, nil
		case c == '[':
			s.pos++
			return tokArrayStart, nil
		case c == ']':
			s.pos++
			return tokArrayEnd, nil
		case c == '/':
			s.pos++
			return tokName, s.regular()
		case c == '{' || c == '}' || c == ')':
			s.pos++
		default:
			tok := s.regular()
			if len(tok) == 0 {
				s.pos++
				continue
			}
			if (tok[0] >= '0' && tok[0] <= '9') || tok[0] == '-' || tok[0] == '+' || tok[0] == '.' {
				return tokNumber, tok
			}
			return tokOperator, tok
		}
	}
	return tokEOF, nil
}

func (s *scanner) regular() []byte {
	start := s.pos
	for s.pos < len(s.src) && !isPDFSpace(s.src[s.pos]) && !isPDFDelim(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (s *scanner) literal() []byte {
	var buf []byte
	depth := 1
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return buf
			}
			buf = append(buf, c)
		case '\\':
			if s.pos >= len(s.src) {
				return buf
			}
			e := s.src[s.pos]
			s.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r':
				if s.pos < len(s.src) && s.src[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.src) && s.src[s.pos] >= '0' && s.src[s.pos] <= '7'; i++ {
						v = v*8 + int(s.src[s.pos]-'0')
						s.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

func (s *scanner) hex() []byte {
	var digits []byte
	for s.pos < len(s.src) && s.src[s.pos] != '>' {
		c := s.src[s.pos]
		if hexVal(c) >= 0 {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		out[i] = byte(hexVal(digits[2*i])<<4 | hexVal(digits[2*i+1]))
	}
	return out
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// skipInlineImage moves past binary inline image data up to the EI operator.
func (s *scanner) skipInlineImage() {
	for s.pos+2 < len(s.src) {
		if isPDFSpace(s.src[s.pos]) && s.src[s.pos+1] == 'E' && s.src[s.pos+2] == 'I' &&
			(s.pos+3 == len(s.src) || isPDFSpace(s.src[s.pos+3])) {
			s.pos += 3
			return
		}
		s.pos++
	}
	s.pos = len(s.src)
}
