// Package imaging shrinks oversized tool photos before they are stored.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"logbook/pkg/types"

	"golang.org/x/image/draw"
)

// JPEGQuality is the compression quality for re-encoded JPEG photos.
const JPEGQuality = 85

// Normalize downscales a JPEG or PNG photo so neither side exceeds maxDim
// and re-encodes it in its own format. Other formats, photos already within
// bounds and files that fail to decode are returned untouched.
func Normalize(file *types.FileUpload, maxDim int) (*types.FileUpload, error) {
	if file == nil || maxDim <= 0 {
		return file, nil
	}

	detected := http.DetectContentType(file.Body)
	if detected != "image/jpeg" && detected != "image/png" {
		return file, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(file.Body))
	if err != nil || (cfg.Width <= maxDim && cfg.Height <= maxDim) {
		return file, nil
	}

	img, _, err := image.Decode(bytes.NewReader(file.Body))
	if err != nil {
		return file, nil
	}

	img = downscale(img, maxDim)

	var buf bytes.Buffer
	switch detected {
	case "image/png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", detected, err)
	}

	return &types.FileUpload{
		Name:        file.Name,
		ContentType: detected,
		Size:        int64(buf.Len()),
		Body:        buf.Bytes(),
	}, nil
}

// downscale resizes img so neither dimension exceeds maxDim, keeping the
// aspect ratio.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	newW = max(newW, 1)
	newH = max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
