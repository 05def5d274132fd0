package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"kbapi/internal/model"
)

// Word extracts the body text of OOXML word processing files (docx, docm,
// dotx). Legacy binary .doc files are not zip archives and fail extraction.
type Word struct{}

func NewWord() *Word { return &Word{} }

func (*Word) Kind() Kind { return KindWord }

func (*Word) Extract(ctx context.Context, r io.Reader) (string, error) {
	data, err := readAll(ctx, r)
	if err != nil {
		return "", err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not an OOXML package: %v", model.ErrExtractionFailed, err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", model.ErrExtractionFailed)
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document part: %v", model.ErrExtractionFailed, err)
	}
	defer rc.Close()

	text, err := documentText(rc)
	if err != nil {
		return "", fmt.Errorf("%w: parse document part: %v", model.ErrExtractionFailed, err)
	}
	return text, nil
}

// documentText walks word/document.xml and keeps w:t runs. Paragraphs end
// with a newline; tabs and breaks are kept.
func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
