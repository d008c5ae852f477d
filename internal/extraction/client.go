package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ticket-wallet/internal/models"
)

var (
	// ErrExtraction is what the user sees when a ticket could not be read.
	ErrExtraction     = errors.New("could not read the ticket details; try again or fill them in manually")
	ErrInvalidPayload = errors.New("extraction response does not match the expected fields")
)

// Extractor turns a ticket image into structured fields.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (models.ExtractedTicketData, error)
}

// Client calls the AI extraction service over HTTP.
type Client struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(url, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{URL: url, APIKey: apiKey, HTTPClient: httpClient}
}

type extractRequest struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
}

// extractResponse uses pointers so missing fields can be told apart from
// empty ones.
type extractResponse struct {
	EventName          *string `json:"eventName"`
	Date               *string `json:"date"`
	Time               *string `json:"time"`
	Location           *string `json:"location"`
	TicketType         *string `json:"ticketType"`
	BarcodeDescription *string `json:"barcodeQRGist"`
}

func (c *Client) Extract(ctx context.Context, image []byte, mimeType string) (models.ExtractedTicketData, error) {
	body, err := json.Marshal(extractRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		MimeType:    mimeType,
	})
	if err != nil {
		return models.ExtractedTicketData{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return models.ExtractedTicketData{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return models.ExtractedTicketData{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ExtractedTicketData{}, fmt.Errorf("%w: service returned %d: %s", ErrExtraction, resp.StatusCode, bytes.TrimSpace(msg))
	}

	return decodeResponse(resp.Body)
}

func decodeResponse(r io.Reader) (models.ExtractedTicketData, error) {
	var raw extractResponse
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return models.ExtractedTicketData{}, fmt.Errorf("%w: %v", ErrExtraction, ErrInvalidPayload)
	}
	fields := []*string{raw.EventName, raw.Date, raw.Time, raw.Location, raw.TicketType, raw.BarcodeDescription}
	for _, f := range fields {
		if f == nil {
			return models.ExtractedTicketData{}, fmt.Errorf("%w: %v", ErrExtraction, ErrInvalidPayload)
		}
	}
	return models.ExtractedTicketData{
		EventName:          *raw.EventName,
		Date:               *raw.Date,
		Time:               *raw.Time,
		Location:           *raw.Location,
		TicketType:         *raw.TicketType,
		BarcodeDescription: *raw.BarcodeDescription,
	}, nil
}
