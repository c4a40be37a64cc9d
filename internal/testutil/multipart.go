package testutil

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"testing"
)

// Upload is one file part of a multipart form.
type Upload struct {
	Name string
	Data []byte
}

// MultipartBody encodes uploads under field plus plain form values.
func MultipartBody(t testing.TB, field string, values map[string]string, uploads ...Upload) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range values {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, u := range uploads {
		part, err := w.CreateFormFile(field, u.Name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(u.Data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, w.FormDataContentType()
}

// FileHeaders parses uploads back into headers as a server would see them.
func FileHeaders(t testing.TB, uploads ...Upload) []*multipart.FileHeader {
	t.Helper()
	body, contentType := MultipartBody(t, "files", nil, uploads...)
	req, err := http.NewRequest(http.MethodPost, "/", body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}
	return req.MultipartForm.File["files"]
}
