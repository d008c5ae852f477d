package qr

import (
	"errors"
	"strings"

	"github.com/skip2/go-qrcode"

	"ticket-wallet/internal/models"
)

var ErrNoCode = errors.New("ticket has no QR code value")

const DefaultSize = 256

// Generator renders the stored code of a ticket so it can be scanned at the
// door.
type Generator struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewGenerator() *Generator {
	return &Generator{Size: DefaultSize, Level: qrcode.Medium}
}

// PNG encodes the ticket's QR code value as a PNG image.
func (g *Generator) PNG(ticket models.Ticket) ([]byte, error) {
	value := strings.TrimSpace(ticket.QRCodeValue)
	if value == "" {
		return nil, ErrNoCode
	}
	size := g.Size
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(value, g.Level, size)
}
