package dispatch

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// MultipartBody carries a file-upload payload. When set on a Request, the
// body is encoded as multipart/form-data instead of JSON.
type MultipartBody struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file in a multipart payload.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string // optional; defaults to application/octet-stream
	Content     []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encode renders the multipart body and returns it with its content type
// (which carries the boundary).
func (m *MultipartBody) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range m.Fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("dispatch: multipart field %q: %w", name, err)
		}
	}

	for _, f := range m.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.FieldName), quoteEscaper.Replace(f.FileName)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("dispatch: multipart file %q: %w", f.FileName, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("dispatch: multipart file %q: %w", f.FileName, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("dispatch: multipart close: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
