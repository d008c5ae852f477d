package models

// ExtractedTicketData is what the extraction service reads off a ticket image.
type ExtractedTicketData struct {
	EventName          string `json:"eventName"`
	Date               string `json:"date"`
	Time               string `json:"time"`
	Location           string `json:"location"`
	TicketType         string `json:"ticketType"`
	BarcodeDescription string `json:"barcodeQRGist"`
}
