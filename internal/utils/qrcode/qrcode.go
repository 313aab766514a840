package qrcode

import (
	"encoding/base64"
	"fmt"

	qr "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// EncodeDataURI renders the given URI as a PNG QR code and returns it as a
// base64 data URI suitable for direct embedding in an <img> tag.
func EncodeDataURI(uri string) (string, error) {
	png, err := qr.Encode(uri, qr.Medium, defaultSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
