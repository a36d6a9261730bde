package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxEdge is the longest image edge sent to a caption backend.
const DefaultMaxEdge = 1024

// jpegQuality matches what browsers use for canvas snapshots.
const jpegQuality = 85

// Normalize prepares an image for upload. JPEGs that already fit within
// maxEdge are returned unchanged. Larger images are scaled down and other
// formats are re-encoded as JPEG. Input that cannot be decoded is returned
// as-is and left for the backend to reject.
func Normalize(data []byte, maxEdge int) []byte {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data
	}
	fits := maxEdge <= 0 || (cfg.Width <= maxEdge && cfg.Height <= maxEdge)
	if fits && format == "jpeg" {
		return data
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	img := src
	if !fits {
		img = scale(src, maxEdge)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return data
	}
	return buf.Bytes()
}

// scale resizes src so its longest edge equals maxEdge, keeping the aspect ratio.
func scale(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = max(1, h*maxEdge/w)
		w = maxEdge
	} else {
		w = max(1, w*maxEdge/h)
		h = maxEdge
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// prepare normalizes data and sniffs the MIME type of the result. Input
// that does not sniff as an image is rejected before any upstream call.
func prepare(data []byte, maxEdge int) ([]byte, string, error) {
	out := Normalize(data, maxEdge)
	mime := http.DetectContentType(out)
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("%w: %w (%s)", ErrCaption, ErrUnsupportedImage, mime)
	}
	return out, mime, nil
}
