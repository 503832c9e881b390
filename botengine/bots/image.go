package bots

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	// webp decode support for image.Decode.
	_ "golang.org/x/image/webp"
)

// maxVisionEdge bounds the longest image edge sent to the vision model.
// Larger images are downscaled to cut token cost without losing legibility.
const maxVisionEdge = 2048

// downscaleIfLarge re-encodes images whose longest edge exceeds
// maxVisionEdge. Undecodable payloads pass through untouched so the
// vision layer's own format rejection stays authoritative.
func downscaleIfLarge(data []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxVisionEdge && bounds.Dy() <= maxVisionEdge {
		return data
	}

	resized := imaging.Fit(img, maxVisionEdge, maxVisionEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		logrus.WithError(err).Warn("[BOT] Failed to re-encode downscaled image, sending original")
		return data
	}
	return buf.Bytes()
}
