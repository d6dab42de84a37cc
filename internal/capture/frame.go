package capture

import (
	"image"
	"image/jpeg"
	"io"
	"net/http"
)

// JPEGQuality is the fixed encoder quality for captured frames.
const JPEGQuality = 90

// ContentTypeJPEG is the content type of every encoded frame.
const ContentTypeJPEG = "image/jpeg"

// Frame is one encoded still image. Index is 1-based and follows
// capture order. Quality is the JPEG quality the frame was encoded
// at, or 0 when unknown.
type Frame struct {
	Index       int
	ContentType string
	Quality     int
	Data        []byte
}

// Encoder writes img to w in the frame encoding.
type Encoder func(w io.Writer, img image.Image) error

// IsJPEG reports whether data starts like a JPEG image. The declared
// content type of an upload is not trusted.
func IsJPEG(data []byte) bool {
	return http.DetectContentType(data) == ContentTypeJPEG
}

// EncodeJPEG encodes img as JPEG at JPEGQuality.
func EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
}
