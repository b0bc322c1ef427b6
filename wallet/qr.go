package wallet

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRCode renders a payment request URI as a PNG image.
func QRCode(uri string) ([]byte, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("error generating qr code: %v", err)
	}
	return png, nil
}

// SaveQRCode writes a payment request URI as a PNG file.
func SaveQRCode(uri, path string) error {
	if err := qrcode.WriteFile(uri, qrcode.Medium, qrSize, path); err != nil {
		return fmt.Errorf("error writing qr code: %v", err)
	}
	return nil
}
