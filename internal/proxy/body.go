package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// multipartMemory is the part of a multipart body kept in memory while
// parsing; the rest spills to temporary files.
const multipartMemory = 32 << 20

// bodyMethods are the methods whose body is relayed.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// TranslateBody prepares the outbound body of r and its content type.
// JSON is re-serialized compactly, multipart forms are rebuilt field by
// field and every other payload is relayed unchanged. A nil reader means
// the request carries no body.
func TranslateBody(r *http.Request) (io.Reader, string, error) {
	if !bodyMethods[r.Method] || r.Body == nil || r.Body == http.NoBody {
		return nil, "", nil
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/json":
		return translateJSON(r.Body, contentType)
	case mediaType == "multipart/form-data":
		return translateMultipart(r)
	default:
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", readError(err)
		}
		if len(raw) == 0 {
			return nil, contentType, nil
		}
		return bytes.NewReader(raw), contentType, nil
	}
}

func translateJSON(body io.Reader, contentType string) (io.Reader, string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, "", readError(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, contentType, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrBodyTranslation, err)
	}
	return &buf, contentType, nil
}

func translateMultipart(r *http.Request) (io.Reader, string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", readError(err)
	}
	form := r.MultipartForm
	defer func() { _ = form.RemoveAll() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, name := range sortedKeys(form.Value) {
		for _, value := range form.Value[name] {
			if err := mw.WriteField(name, value); err != nil {
				return nil, "", fmt.Errorf("%w: %w", ErrBodyTranslation, err)
			}
		}
	}

	for _, name := range sortedKeys(form.File) {
		for _, fh := range form.File[name] {
			if err := copyFilePart(mw, name, fh); err != nil {
				return nil, "", fmt.Errorf("%w: %w", ErrBodyTranslation, err)
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrBodyTranslation, err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func copyFilePart(mw *multipart.Writer, field string, fh *multipart.FileHeader) error {
	partType := fh.Header.Get("Content-Type")
	if partType == "" {
		partType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     field,
		"filename": fh.Filename,
	}))
	h.Set("Content-Type", partType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(part, f)
	return err
}

// readError keeps an oversized body recognizable and marks every other
// read failure as a translation failure.
func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBodyTranslation, err)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
