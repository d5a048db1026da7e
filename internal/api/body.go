package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// Body is a request payload. The caller picks the variant; nothing is inferred
// from the value's runtime type.
type Body interface {
	encode() (io.Reader, string, error)
}

// JSONBody marshals Value as application/json
type JSONBody struct {
	Value interface{}
}

func (b JSONBody) encode() (io.Reader, string, error) {
	data, err := json.Marshal(b.Value)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// FormField is one plain multipart field
type FormField struct {
	Name  string
	Value string
}

// FilePart is one uploaded file
type FilePart struct {
	Field    string
	FileName string
	Content  io.Reader
}

// MultipartBody is a multipart/form-data payload
type MultipartBody struct {
	Fields []FormField
	Files  []FilePart
}

func (b MultipartBody) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range b.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.Name, err)
		}
	}
	for _, f := range b.Files {
		part, err := w.CreateFormFile(f.Field, f.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part for %s: %w", f.FileName, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy %s: %w", f.FileName, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
