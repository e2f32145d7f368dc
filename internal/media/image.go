package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strings"
)

// ErrNotImage is returned for files whose content is not a supported image.
var ErrNotImage = errors.New("not an image")

// Image is a decoded-and-validated image ready to attach to a prompt.
type Image struct {
	Path     string
	MIMEType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// Loader loads images from disk.
type Loader interface {
	Load(path string) (Image, error)
}

// FileLoader reads images from the local filesystem.
type FileLoader struct{}

// Load reads path, sniffs its content type and checks that the header
// decodes. WebP has no decoder in the standard library and is accepted on
// the sniffed type alone.
func (FileLoader) Load(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("reading image: %w", err)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return Image{}, fmt.Errorf("%w: %s is %s", ErrNotImage, path, mime)
	}

	if mime != "image/webp" {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return Image{}, fmt.Errorf("%w: %s: %v", ErrNotImage, path, err)
		}
	}

	return Image{Path: path, MIMEType: mime, Data: data}, nil
}
