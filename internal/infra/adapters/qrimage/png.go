// Package qrimage renders payment payloads as scannable images.
package qrimage

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"khqr-payment-bot/internal/domain/ports/adapter"
)

var _ adapter.QRRenderer = (*PNGRenderer)(nil)

const defaultSize = 512

type PNGRenderer struct {
	size int
}

// NewPNGRenderer returns a renderer producing size x size images; size <= 0 uses 512.
func NewPNGRenderer(size int) *PNGRenderer {
	if size <= 0 {
		size = defaultSize
	}
	return &PNGRenderer{size: size}
}

func (r *PNGRenderer) RenderPNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("empty payload")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
