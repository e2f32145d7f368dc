package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestDownload_WritesFile(t *testing.T) {
	payload := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(dir, 0)
	path, err := d.Download(context.Background(), srv.URL+"/a.png", "42.jpg")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(dir, "42.jpg") {
		t.Errorf("path = %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("downloaded bytes differ")
	}
}

func TestDownload_ServerErrorIsDownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(dir, 0)
	_, err := d.Download(context.Background(), srv.URL+"/a.jpg", "42.jpg")

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("err = %v, want *DownloadError", err)
	}
	if dlErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", dlErr.Status)
	}
	if _, err := os.Stat(filepath.Join(dir, "42.jpg")); !os.IsNotExist(err) {
		t.Error("failed download left a file behind")
	}
}

func TestDownload_RejectsPathNames(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	root := t.TempDir()
	d := NewDownloader(filepath.Join(root, "media"), 0)
	for _, name := range []string{"", "../escape.jpg", "a/b.jpg", "..", ".hidden"} {
		if _, err := d.Download(context.Background(), srv.URL+"/a.jpg", name); err == nil {
			t.Errorf("Download(%q) accepted", name)
		}
	}
	if hits != 0 {
		t.Errorf("server hit %d times for rejected names", hits)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.jpg")); !os.IsNotExist(err) {
		t.Error("file written outside the media dir")
	}
}

func TestFileLoader_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(path, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := FileLoader{}.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want sniffed image/png", img.MIMEType)
	}
	if img.Base64() == "" {
		t.Error("Base64 is empty")
	}
}

func TestFileLoader_Missing(t *testing.T) {
	_, err := FileLoader{}.Load(filepath.Join(t.TempDir(), "gone.jpg"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestFileLoader_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(path, []byte("<html>rate limited</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := FileLoader{}.Load(path)
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("err = %v, want ErrNotImage", err)
	}
}
