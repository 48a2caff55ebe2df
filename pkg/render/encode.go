package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
)

// EncodePNG returns img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns img as a standard base64 encoded PNG.
func EncodeBase64(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return Base64(data), nil
}

// Base64 returns already encoded PNG bytes as standard base64.
func Base64(png []byte) string {
	return base64.StdEncoding.EncodeToString(png)
}
