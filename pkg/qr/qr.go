// Package qr renders ticket payloads into scannable QR codes.
package qr

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Renderer turns a payload into an opaque image string. Implementations must be pure.
type Renderer interface {
	Render(payload []byte) (string, error)
}

// PNGRenderer renders PNG images encoded as data URLs
type PNGRenderer struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewPNGRenderer creates a renderer producing size x size images
func NewPNGRenderer(size int) *PNGRenderer {
	if size <= 0 {
		size = 256
	}
	return &PNGRenderer{size: size, level: qrcode.Medium}
}

// Render encodes payload as a base64 PNG data URL
func (r *PNGRenderer) Render(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("empty qr payload")
	}
	png, err := qrcode.Encode(string(payload), r.level, r.size)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
