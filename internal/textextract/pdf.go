package textextract

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	rpdf "rsc.io/pdf"
)

// ExtractPDF reads the file at path and returns its concatenated text
// content. The underlying reader can panic on malformed PDFs; that panic is
// recovered and turned into ErrUnreadable.
func ExtractPDF(path string) (text string, err error) {
	content, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: %v", ErrUnreadable, readErr)
	}
	return ExtractPDFBytes(content)
}

// ExtractPDFBytes extracts text from an in-memory PDF document.
func ExtractPDFBytes(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: pdf parser panic: %v", ErrUnreadable, recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return collapseSpace(builder.String()), nil
}
