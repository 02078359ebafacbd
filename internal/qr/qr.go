// Package qr renders engine scan codes as inline PNG images.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// defaultSize is the rendered image edge in pixels.
const defaultSize = 256

// Render encodes a scan code as a base64 PNG data URI suitable for an
// <img> src attribute.
func Render(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("qr: empty scan code")
	}
	png, err := qrcode.Encode(code, qrcode.Medium, defaultSize)
	if err != nil {
		return "", fmt.Errorf("qr: encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
