package models

type Ticket struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	QRCodeValue     string `json:"qrCodeValue"`
	PurchaseDetails string `json:"purchaseDetails,omitempty"`
	ImageBase64     string `json:"imageBase64"`
}
