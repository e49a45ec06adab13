package billing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
)

// MaxSignatureBytes caps the decoded PNG size of a signature.
const MaxSignatureBytes = 512 << 10

const dataURLPrefix = "data:image/png;base64,"

// SignatureInput is what a signing client submits: the signer's name and a
// base64 PNG, optionally as a data URL captured from a canvas.
type SignatureInput struct {
	SignerName string `json:"signer_name" validate:"required,max=200"`
	Image      string `json:"image" validate:"required"`
}

// decodeSignature returns the raw PNG bytes of a signature image.
func decodeSignature(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		if !strings.HasPrefix(strings.ToLower(raw), dataURLPrefix) {
			return nil, fmt.Errorf("%w: only image/png data URLs are accepted", ErrInvalidSignature)
		}
		raw = raw[len(dataURLPrefix):]
	}

	if base64.StdEncoding.DecodedLen(len(raw)) > MaxSignatureBytes+3 {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidSignature, MaxSignatureBytes)
	}

	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidSignature, err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidSignature)
	}
	if len(img) > MaxSignatureBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidSignature, MaxSignatureBytes)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: not a PNG image: %v", ErrInvalidSignature, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidSignature)
	}

	return img, nil
}
