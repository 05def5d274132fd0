package extract

import (
	"strings"
	"unicode/utf16"

	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxRangeSpan caps a single bfrange so a corrupt CMap cannot allocate without bound.
const maxRangeSpan = 0xFFFF

// pdfFont decodes the string operands shown with one font resource.
// Composite (Type0) fonts use two-byte codes and are only readable through
// their ToUnicode CMap.
type pdfFont struct {
	composite bool
	toUnicode map[uint32]string
}

// unmapped reports whether shown codes cannot be turned into text.
func (f *pdfFont) unmapped() bool {
	return f != nil && f.composite && len(f.toUnicode) == 0
}

func (f *pdfFont) decode(b []byte) string {
	if f == nil || len(f.toUnicode) == 0 {
		return decodePDFString(b)
	}
	var sb strings.Builder
	if f.composite {
		for i := 0; i+1 < len(b); i += 2 {
			sb.WriteString(f.toUnicode[uint32(b[i])<<8|uint32(b[i+1])])
		}
		return sb.String()
	}
	for _, c := range b {
		if s, ok := f.toUnicode[uint32(c)]; ok {
			sb.WriteString(s)
			continue
		}
		sb.WriteString(decodePDFString([]byte{c}))
	}
	return sb.String()
}

// pageFonts loads the font resources of page nr keyed by resource name.
// Fonts that cannot be resolved are left out and decode as single-byte text.
func pageFonts(xt *pdfmodel.XRefTable, nr int) (map[string]*pdfFont, error) {
	_, _, inh, err := xt.PageDict(nr, false)
	if err != nil {
		return nil, err
	}
	if inh == nil || inh.Resources == nil {
		return nil, nil
	}
	fd, err := xt.DereferenceDict(inh.Resources["Font"])
	if err != nil || fd == nil {
		return nil, err
	}

	fonts := make(map[string]*pdfFont, len(fd))
	for name, o := range fd {
		d, err := xt.DereferenceDict(o)
		if err != nil || d == nil {
			continue
		}
		f := &pdfFont{}
		if st := d.NameEntry("Subtype"); st != nil && *st == "Type0" {
			f.composite = true
		}
		if tu, ok := d.Find("ToUnicode"); ok && tu != nil {
			f.toUnicode = loadToUnicode(xt, tu)
		}
		fonts[name] = f
	}
	return fonts, nil
}

func loadToUnicode(xt *pdfmodel.XRefTable, o types.Object) map[uint32]string {
	sd, _, err := xt.DereferenceStreamDict(o)
	if err != nil || sd == nil {
		return nil
	}
	if err := sd.Decode(); err != nil {
		return nil
	}
	return parseToUnicode(sd.Content)
}

// parseToUnicode reads the bfchar and bfrange sections of a ToUnicode CMap.
func parseToUnicode(data []byte) map[uint32]string {
	s := &scanner{src: data}
	m := map[uint32]string{}
	var (
		section string
		args    [][]byte
		array   [][]byte
		inArray bool
		arrays  [][][]byte
	)

	for {
		kind, tok := s.next()
		switch kind {
		case tokEOF:
			return m
		case tokString:
			if inArray {
				array = append(array, tok)
				continue
			}
			args = append(args, tok)
		case tokArrayStart:
			inArray, array = true, nil
		case tokArrayEnd:
			if inArray {
				inArray = false
				arrays = append(arrays, array)
				// Marks the array's position among the range operands.
				args = append(args, nil)
			}
		case tokOperator:
			switch string(tok) {
			case "beginbfchar", "beginbfrange":
				section = string(tok)
				args, arrays = nil, nil
				continue
			case "endbfchar":
				for i := 0; i+1 < len(args); i += 2 {
					if args[i] != nil && args[i+1] != nil {
						m[cmapCode(args[i])] = utf16BE(args[i+1])
					}
				}
			case "endbfrange":
				bfRange(m, args, arrays)
			}
			if section != "" {
				section, args, arrays = "", nil, nil
			}
		}
	}
}

func bfRange(m map[uint32]string, args [][]byte, arrays [][][]byte) {
	next := 0
	for i := 0; i+2 < len(args); i += 3 {
		lo, hi := cmapCode(args[i]), cmapCode(args[i+1])
		if args[i] == nil || args[i+1] == nil || hi < lo || hi-lo > maxRangeSpan {
			continue
		}
		if args[i+2] == nil {
			if next >= len(arrays) {
				return
			}
			dsts := arrays[next]
			next++
			for j, dst := range dsts {
				if lo+uint32(j) > hi {
					break
				}
				m[lo+uint32(j)] = utf16BE(dst)
			}
			continue
		}
		units := toUTF16Units(args[i+2])
		if len(units) == 0 {
			continue
		}
		last := units[len(units)-1]
		for c := lo; c <= hi; c++ {
			units[len(units)-1] = last + uint16(c-lo)
			m[c] = string(utf16.Decode(units))
		}
	}
}

func cmapCode(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func toUTF16Units(b []byte) []uint16 {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return u
}

func utf16BE(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	return decodeUTF16(b, true)
}
