package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
	"ticket-wallet/internal/wallet"
)

type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusReview     ItemStatus = "review"
	StatusError      ItemStatus = "error"
)

var (
	ErrItemNotFound       = errors.New("import item not found")
	ErrItemNotRetryable   = errors.New("only failed items can be retried")
	ErrItemNotEditable    = errors.New("only items under review can be edited")
	ErrUnsupportedFile    = errors.New("unsupported file type; upload an image or a PDF")
	ErrDateNeedsAttention = errors.New("date must be a valid YYYY-MM-DD date")
)

// Upload is one file handed to an import.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// Item tracks one uploaded file through extraction and review.
type Item struct {
	ID          string                      `json:"id"`
	FileName    string                      `json:"fileName"`
	MimeType    string                      `json:"mimeType"`
	Status      ItemStatus                  `json:"status"`
	Error       string                      `json:"error,omitempty"`
	Fields      *models.ExtractedTicketData `json:"fields,omitempty"`
	DateInvalid bool                        `json:"dateInvalid"`

	data []byte
}

// Ready reports whether the item can be turned into a ticket.
func (it *Item) Ready() bool {
	return it.Status == StatusReview && it.Fields != nil && !it.DateInvalid
}

// Batch is one multi-file import. Extraction of its items runs
// concurrently; the order of Items is the upload order and is the order in
// which tickets are committed.
type Batch struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	mu    sync.Mutex
	items []*Item
}

type Importer struct {
	Extractor   Extractor
	Concurrency int
	Location    *time.Location
	Logger      *logger.Logger
}

// NewBatch creates a batch with one pending item per upload.
func (im *Importer) NewBatch(uploads []Upload) *Batch {
	b := &Batch{ID: "imp_" + uuid.NewString(), CreatedAt: time.Now().UTC()}
	for _, u := range uploads {
		b.items = append(b.items, &Item{
			ID:       "itm_" + uuid.NewString(),
			FileName: u.FileName,
			MimeType: u.MimeType,
			Status:   StatusPending,
			data:     u.Data,
		})
	}
	return b
}

// Process extracts every pending item of the batch. A failure only affects
// its own item.
func (im *Importer) Process(ctx context.Context, b *Batch) {
	pending := b.itemsWithStatus(StatusPending)

	g, gctx := errgroup.WithContext(ctx)
	if im.Concurrency > 0 {
		g.SetLimit(im.Concurrency)
	}
	for _, it := range pending {
		g.Go(func() error {
			im.processItem(gctx, b, it)
			return nil
		})
	}
	_ = g.Wait()

	im.Logger.LogImport(b.ID, fmt.Sprintf("processed %d items", len(pending)))
}

// Retry runs extraction again for a failed item.
func (im *Importer) Retry(ctx context.Context, b *Batch, itemID string) error {
	b.mu.Lock()
	it := b.find(itemID)
	if it == nil {
		b.mu.Unlock()
		return ErrItemNotFound
	}
	if it.Status != StatusError {
		b.mu.Unlock()
		return ErrItemNotRetryable
	}
	it.Status = StatusPending
	it.Error = ""
	b.mu.Unlock()

	im.processItem(ctx, b, it)
	return nil
}

func (im *Importer) processItem(ctx context.Context, b *Batch, it *Item) {
	b.mu.Lock()
	it.Status = StatusProcessing
	mimeType, data := it.MimeType, it.data
	b.mu.Unlock()

	if !supportedMimeType(mimeType) {
		b.fail(it, ErrUnsupportedFile)
		return
	}

	fields, err := im.Extractor.Extract(ctx, data, mimeType)
	if err != nil {
		im.Logger.Warn("IMPORT", fmt.Sprintf("[%s] extraction failed for %s: %v", b.ID, it.FileName, err))
		if !errors.Is(err, ErrExtraction) {
			err = ErrExtraction
		}
		b.fail(it, err)
		return
	}

	var dateInvalid bool
	fields.Date, dateInvalid = NormalizeDate(fields.Date, im.location())

	b.mu.Lock()
	it.Fields = &fields
	it.DateInvalid = dateInvalid
	it.Status = StatusReview
	b.mu.Unlock()
}

func (im *Importer) location() *time.Location {
	if im.Location == nil {
		return time.Local
	}
	return im.Location
}

// NormalizeDate trims an extracted date and reports whether it is unusable.
func NormalizeDate(date string, loc *time.Location) (string, bool) {
	date = strings.TrimSpace(date)
	if _, err := wallet.ParseDate(date, loc); err != nil {
		return "", true
	}
	return date, false
}

func supportedMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}

// FieldsPatch corrects the extracted fields of an item under review.
type FieldsPatch struct {
	EventName          *string `json:"eventName,omitempty"`
	Date               *string `json:"date,omitempty"`
	Time               *string `json:"time,omitempty"`
	Location           *string `json:"location,omitempty"`
	TicketType         *string `json:"ticketType,omitempty"`
	BarcodeDescription *string `json:"barcodeQRGist,omitempty"`
}

// Correct applies user edits to an item under review. A corrected date
// clears the item's invalid-date mark; an unusable one is refused.
func (b *Batch) Correct(itemID string, patch FieldsPatch, loc *time.Location) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := b.find(itemID)
	if it == nil {
		return ErrItemNotFound
	}
	if it.Status != StatusReview || it.Fields == nil {
		return ErrItemNotEditable
	}

	fields := *it.Fields
	if patch.Date != nil {
		date, invalid := NormalizeDate(*patch.Date, loc)
		if invalid {
			return ErrDateNeedsAttention
		}
		fields.Date = date
		it.DateInvalid = false
	}
	if patch.EventName != nil {
		fields.EventName = *patch.EventName
	}
	if patch.Time != nil {
		fields.Time = *patch.Time
	}
	if patch.Location != nil {
		fields.Location = *patch.Location
	}
	if patch.TicketType != nil {
		fields.TicketType = *patch.TicketType
	}
	if patch.BarcodeDescription != nil {
		fields.BarcodeDescription = *patch.BarcodeDescription
	}
	it.Fields = &fields
	return nil
}

// Remove drops an item from the batch.
func (b *Batch) Remove(itemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, it := range b.items {
		if it.ID == itemID {
			b.items = append(b.items[:i:i], b.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// TakeReady removes the items that are ready and returns their ticket
// payloads in upload order. Items still failing or awaiting a date stay in
// the batch.
func (b *Batch) TakeReady(newTicketID func() string) []models.NewTicketPayload {
	b.mu.Lock()
	defer b.mu.Unlock()

	var payloads []models.NewTicketPayload
	var rest []*Item
	for _, it := range b.items {
		if !it.Ready() {
			rest = append(rest, it)
			continue
		}
		payloads = append(payloads, models.NewTicketPayload{
			Ticket: models.Ticket{
				ID:          newTicketID(),
				Type:        it.Fields.TicketType,
				QRCodeValue: it.Fields.BarcodeDescription,
				ImageBase64: dataURL(it.MimeType, it.data),
			},
			EventDetails: models.EventDetails{
				Name:     it.Fields.EventName,
				Date:     it.Fields.Date,
				Time:     it.Fields.Time,
				Location: it.Fields.Location,
			},
		})
	}
	b.items = rest
	return payloads
}

// Items returns a snapshot of the batch items.
func (b *Batch) Items() []Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Item, 0, len(b.items))
	for _, it := range b.items {
		cp := *it
		if it.Fields != nil {
			f := *it.Fields
			cp.Fields = &f
		}
		out = append(out, cp)
	}
	return out
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Batch) itemsWithStatus(status ItemStatus) []*Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Item
	for _, it := range b.items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out
}

func (b *Batch) find(itemID string) *Item {
	for _, it := range b.items {
		if it.ID == itemID {
			return it
		}
	}
	return nil
}

func (b *Batch) fail(it *Item, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it.Status = StatusError
	it.Error = err.Error()
}

func dataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
