package server

import (
	"bytes"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/dhernos/dynpages/internal/config"
	"github.com/dhernos/dynpages/internal/uploads"
)

func multipartUpload(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUploadAndServe(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signup("ada@example.com")
	data := tinyPNG(t)

	req := multipartUpload(t, "file", "cover.png", "image/png", data)
	req.AddCookie(cookie)
	rec := env.serve(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body)
	}
	var res struct {
		Success int `json:"success"`
		File    struct {
			URL  string `json:"url"`
			ID   string `json:"id"`
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"file"`
	}
	decode(t, rec, &res)
	if res.Success != 1 || res.File.Name != "cover.png" || res.File.Size != int64(len(data)) || res.File.ID == "" {
		t.Fatalf("response = %+v", res)
	}

	rec = env.do(http.MethodGet, res.File.URL, nil, nil)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), data) {
		t.Errorf("serve = %d (%d bytes)", rec.Code, rec.Body.Len())
	}
	if rec := env.do(http.MethodGet, "/uploads/"+res.File.ID+"/", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("directory listing = %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/api/upload", nil, cookie)
	var list struct {
		Files []uploads.File `json:"files"`
	}
	decode(t, rec, &list)
	if len(list.Files) != 1 || list.Files[0].FileID != res.File.ID {
		t.Errorf("files = %+v", list.Files)
	}
}

func TestUploadRejects(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config, _ *Deps) { c.MaxUploadBytes = 2 << 20 })
	cookie := env.signup("ada@example.com")

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"wrong field", multipartUpload(t, "image", "a.png", "image/png", tinyPNG(t)), "No file provided"},
		{"text file", multipartUpload(t, "file", "notes.txt", "text/plain", []byte("hello")), "Invalid file type. Only images are allowed"},
		{"too large", multipartUpload(t, "file", "big.png", "image/png", make([]byte, 2<<20+1)), "File too large. Maximum size is 2MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.AddCookie(cookie)
			rec := env.serve(tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d %s", rec.Code, rec.Body)
			}
			if got := errorMessage(t, rec); got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}

	req := multipartUpload(t, "file", "a.png", "image/png", tinyPNG(t))
	if rec := env.serve(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous upload = %d", rec.Code)
	}
}
