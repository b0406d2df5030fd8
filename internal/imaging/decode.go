package imaging

import (
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"  // register BMP decoding
	_ "golang.org/x/image/webp" // register WebP decoding
)

// imageExtensions lists the file extensions Decode understands.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

// IsImageFile reports whether path has a decodable image extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Decode reads an encoded image into a BGRA8 frame.
func Decode(r io.Reader) (*Frame, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	f := FromImage(img)
	f.Timestamp = time.Now()
	return f, nil
}

// DecodeFile decodes the image at path. The frame timestamp is the file's
// modification time.
func DecodeFile(path string) (*Frame, error) {
	file, err := os.Open(path) //nolint:gosec // G304: paths come from the caller's frame source.
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if st, err := file.Stat(); err == nil {
		f.Timestamp = st.ModTime()
	}
	return f, nil
}
