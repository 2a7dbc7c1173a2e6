package account

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCode renders a linking token as a PNG for the scanning view.
func QRCode(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("empty linking token")
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
