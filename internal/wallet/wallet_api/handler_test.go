package wallet_api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-wallet/internal/auth"
	"ticket-wallet/internal/clock"
	"ticket-wallet/internal/extraction"
	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
	"ticket-wallet/internal/reminders"
	"ticket-wallet/internal/sse"
	"ticket-wallet/internal/wallet"
	"ticket-wallet/internal/wallet/service"
)

var testSecret = []byte("test-secret")

type memStore struct {
	mu   sync.Mutex
	data map[string][]models.Event
}

func (m *memStore) GetUserEvents(_ context.Context, userID string) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[userID]
}

func (m *memStore) SaveUserEvents(_ context.Context, userID string, events []models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = events
	return nil
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, image []byte, mimeType string) (models.ExtractedTicketData, error) {
	args := m.Called(image, mimeType)
	return args.Get(0).(models.ExtractedTicketData), args.Error(1)
}

type testServer struct {
	*httptest.Server
	svc     *service.WalletService
	store   *memStore
	ex      *MockExtractor
	emitter *sse.ReminderEmitter
}

func setupServer(t *testing.T) *testServer {
	return setupServerWithWriteTimeout(t, 0)
}

func setupServerWithWriteTimeout(t *testing.T, writeTimeout time.Duration) *testServer {
	core := wallet.NewCore(clock.NewFixed(time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)), time.UTC)
	n := 0
	core.NewEventID = func() string {
		n++
		return fmt.Sprintf("evt_%d", n)
	}
	ex := new(MockExtractor)
	importer := &extraction.Importer{Extractor: ex, Concurrency: 2, Location: time.UTC, Logger: logger.Discard()}
	store := &memStore{data: map[string][]models.Event{}}
	svc := service.NewWalletService(store, nil, core, importer, logger.Discard())
	emitter := sse.NewReminderEmitter()
	svc.Sink = emitter

	h := NewHandler(svc, emitter, logger.Discard())
	r := chi.NewRouter()
	r.Use(auth.Middleware(testSecret, logger.Discard()))
	r.Route("/api", h.RegisterRoutes)

	server := httptest.NewUnstartedServer(r)
	server.Config.WriteTimeout = writeTimeout
	server.Start()
	t.Cleanup(func() {
		server.Close()
		svc.Close()
	})
	return &testServer{Server: server, svc: svc, store: store, ex: ex, emitter: emitter}
}

func (s *testServer) do(t *testing.T, user, method, path string, body interface{}) *http.Response {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+"/api/wallet"+path, reader)
	require.NoError(t, err)
	s.authorize(t, req, user)

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) authorize(t *testing.T, req *http.Request, user string) {
	token, err := auth.IssueToken(models.User{ID: user}, testSecret, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func concertPayloads() []models.NewTicketPayload {
	return []models.NewTicketPayload{
		{Ticket: models.Ticket{ID: "tkt_1", Type: "entry", QRCodeValue: "CP-1"}, EventDetails: models.EventDetails{Name: "Coldplay Live", Date: "2025-06-01", Time: "20:00", Location: "Stadium"}},
		{Ticket: models.Ticket{ID: "tkt_2", Type: "parking", QRCodeValue: "CP-P"}, EventDetails: models.EventDetails{Name: "Coldplay", Date: "2025-06-01"}},
		{Ticket: models.Ticket{Type: "entry"}, EventDetails: models.EventDetails{Name: "Jazz Night", Date: "2025-06-01"}},
	}
}

func TestUnauthenticated(t *testing.T) {
	s := setupServer(t)

	resp, err := s.Client().Get(s.URL + "/api/wallet/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAddBatchAndList(t *testing.T) {
	s := setupServer(t)

	resp := s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	events := decode[[]models.Event](t, resp)
	require.Len(t, events, 2)
	assert.Len(t, events[0].Tickets, 2)
	assert.True(t, strings.HasPrefix(events[1].Tickets[0].ID, "tkt_"))

	resp = s.do(t, "user-1", http.MethodGet, "/events?start=2025-06-01&end=2025-06-30", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Event](t, resp), 2)

	resp = s.do(t, "user-1", http.MethodGet, "/events?start=June", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Test case: wallets are per user
	resp = s.do(t, "user-2", http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Event](t, resp))
}

func TestGetEventGroupsTickets(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	resp := s.do(t, "user-1", http.MethodGet, "/events/evt_1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[eventResponse](t, resp)
	assert.Equal(t, "Coldplay Live", got.Name)
	require.Len(t, got.TicketGroups, 2)
	assert.Equal(t, "entry", got.TicketGroups[0].Type)

	resp = s.do(t, "user-1", http.MethodGet, "/events/evt_9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateEventAndReminder(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	resp := s.do(t, "user-1", http.MethodPatch, "/events/evt_1", map[string]string{"location": "Wembley"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Wembley", decode[models.Event](t, resp).Location)

	resp = s.do(t, "user-1", http.MethodPut, "/events/evt_1/reminder", reminderRequest{Reminder: models.ReminderTwoHours})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodPut, "/events/evt_1/reminder", reminderRequest{Reminder: "5m"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodPatch, "/events/evt_1", map[string]string{"date": "next friday"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodGet, "/events/evt_1", nil)
	assert.Equal(t, "2025-06-01", decode[eventResponse](t, resp).Date)
}

func TestDeleteEventRequiresConfirmation(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	resp := s.do(t, "user-1", http.MethodDelete, "/events/evt_1", nil)
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodDelete, "/events/evt_1?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	s.store.mu.Lock()
	stored := s.store.data["user-1"]
	s.store.mu.Unlock()
	require.Len(t, stored, 1)
	assert.Equal(t, "evt_2", stored[0].ID)

	resp = s.do(t, "user-1", http.MethodGet, "/events", nil)
	assert.Len(t, decode[[]models.Event](t, resp), 1)
}

func TestTicketRoutes(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	parking := s.ticketID(t, "evt_1", 1)

	resp := s.do(t, "user-1", http.MethodPut, "/events/evt_1/tickets/"+parking, models.Ticket{Type: "vip parking", QRCodeValue: "CP-P2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, parking, decode[models.Ticket](t, resp).ID)

	resp = s.do(t, "user-1", http.MethodGet, "/events/evt_1/tickets/"+parking+"/qr", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = s.do(t, "user-1", http.MethodDelete, "/events/evt_1/tickets/tkt_9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodDelete, "/events/evt_1/tickets/"+parking, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestMoveTicket(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	entry, parking := s.ticketID(t, "evt_1", 0), s.ticketID(t, "evt_1", 1)

	resp := s.do(t, "user-1", http.MethodPost, "/events/evt_2/tickets/"+s.ticketID(t, "evt_2", 0)+"/move", moveRequest{
		Destination:    models.MoveDestination{EventID: "evt_1"},
		ViewingEventID: "evt_2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[moveResponse](t, resp)
	assert.True(t, got.SourceRemoved)
	assert.True(t, got.NavigateToList)

	resp = s.do(t, "user-1", http.MethodPost, "/events/evt_1/tickets/"+entry+"/move", moveRequest{
		Destination: models.MoveDestination{NewEvent: &models.EventDetails{Name: "Afterparty", Date: "2025-06-02"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[moveResponse](t, resp)
	assert.False(t, got.SourceRemoved)
	assert.NotEmpty(t, got.NewEventID)

	resp = s.do(t, "user-1", http.MethodPost, "/events/evt_1/tickets/"+parking+"/move", moveRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodPost, "/events/evt_1/tickets/"+parking+"/move", moveRequest{
		Destination: models.MoveDestination{NewEvent: &models.EventDetails{Name: "Afterparty", Date: "2025-06-31"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, parking, s.ticketID(t, "evt_1", 0))
}

// ticketID returns the id of the i-th ticket of a user-1 event.
func (s *testServer) ticketID(t *testing.T, eventID string, i int) string {
	sess, err := s.svc.Session(context.Background(), "user-1")
	require.NoError(t, err)
	e, err := sess.Event(eventID)
	require.NoError(t, err)
	require.Greater(t, len(e.Tickets), i)
	return e.Tickets[i].ID
}

func TestMerge(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())
	s.do(t, "user-1", http.MethodPost, "/events/batch", []models.NewTicketPayload{
		{Ticket: models.Ticket{ID: "tkt_x"}, EventDetails: models.EventDetails{Name: "Opera", Date: "2025-07-01"}},
	})

	resp := s.do(t, "user-1", http.MethodPost, "/merge/attempt", mergeRequest{SourceID: "evt_3", TargetID: "evt_1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodPost, "/merge/attempt", mergeRequest{SourceID: "evt_1", TargetID: "evt_1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodPost, "/merge/attempt", mergeRequest{SourceID: "evt_2", TargetID: "evt_1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	proposal := decode[wallet.MergeProposal](t, resp)
	assert.Equal(t, "evt_1", proposal.TargetID)

	resp = s.do(t, "user-1", http.MethodPost, "/merge/confirm", mergeRequest{SourceID: "evt_2", TargetID: "evt_1", Name: "Saturday"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	merged := decode[models.Event](t, resp)
	assert.Equal(t, "Saturday", merged.Name)
	assert.Len(t, merged.Tickets, 3)
}

func TestReminders(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	sess, err := s.svc.Session(context.Background(), "user-1")
	require.NoError(t, err)
	sess.PushReminder(reminders.Notification{UserID: "user-1", EventID: "evt_1", EventName: "Coldplay Live"})

	resp := s.do(t, "user-1", http.MethodGet, "/reminders", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]reminders.Notification](t, resp), 1)

	resp = s.do(t, "user-1", http.MethodPost, "/reminders/evt_1/dismiss", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodGet, "/reminders", nil)
	assert.Empty(t, decode[[]reminders.Notification](t, resp))
}

func TestImportFlow(t *testing.T) {
	s := setupServer(t)
	s.ex.On("Extract", []byte("good"), "image/png").Return(models.ExtractedTicketData{
		EventName: "Jazz Night", Date: "2025-06-01", Time: "21:00", Location: "Blue Hall", TicketType: "VIP", BarcodeDescription: "J1",
	}, nil)
	s.ex.On("Extract", []byte("bad"), "image/png").Return(models.ExtractedTicketData{}, extraction.ErrExtraction)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range map[string]string{"good.png": "good", "bad.png": "bad"} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, name))
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		part.Write([]byte(content))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/wallet/imports", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.authorize(t, req, "user-1")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[importResponse](t, resp)
	require.Len(t, created.Items, 2)

	var failedID string
	for _, it := range created.Items {
		if it.Status == extraction.StatusError {
			failedID = it.ID
		}
	}
	require.NotEmpty(t, failedID)

	resp = s.do(t, "user-1", http.MethodPost, "/imports/"+created.ID+"/items/"+failedID+"/retry", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodPost, "/imports/"+created.ID+"/commit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	committed := decode[commitResponse](t, resp)
	assert.Equal(t, 1, committed.Added)
	require.Len(t, committed.Remaining, 1)

	resp = s.do(t, "user-1", http.MethodDelete, "/imports/"+created.ID+"/items/"+failedID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodGet, "/imports/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, "user-1", http.MethodGet, "/events", nil)
	events := decode[[]models.Event](t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, "J1", events[0].Tickets[0].QRCodeValue)
}

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, "image/jpeg", mimeTypeOf("image/jpeg; charset=binary", nil))
	assert.Equal(t, "application/pdf", mimeTypeOf("", []byte("%PDF-1.7\n")))
}

func TestStreamReminders(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+"/api/wallet/reminders/stream", nil)
	require.NoError(t, err)
	s.authorize(t, req, "user-1")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	require.Eventually(t, func() bool { return s.emitter.Subscribers("user-1") == 1 }, time.Second, 10*time.Millisecond)

	sess, err := s.svc.Session(context.Background(), "user-1")
	require.NoError(t, err)
	sess.PushReminder(reminders.Notification{EventID: "evt_1", EventName: "Coldplay Live"})

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, "reminder", event)

	var n reminders.Notification
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	assert.Equal(t, "user-1", n.UserID)
	assert.Equal(t, "evt_1", n.EventID)
}

func TestAddBatchValidatesDatesAndAssignsTicketIDs(t *testing.T) {
	s := setupServer(t)

	for _, date := range []string{"2025-02-30", "next friday"} {
		resp := s.do(t, "user-1", http.MethodPost, "/events/batch", []models.NewTicketPayload{
			{Ticket: models.Ticket{ID: "tkt_1"}, EventDetails: models.EventDetails{Name: "Opera", Date: date}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, date)
	}
	resp := s.do(t, "user-1", http.MethodGet, "/events", nil)
	assert.Empty(t, decode[[]models.Event](t, resp))

	batch := []models.NewTicketPayload{
		{Ticket: models.Ticket{ID: "tkt_1"}, EventDetails: models.EventDetails{Name: "Opera", Date: "2025-07-01"}},
		{Ticket: models.Ticket{ID: "tkt_1"}, EventDetails: models.EventDetails{Name: "Opera", Date: "2025-07-01"}},
	}
	s.do(t, "user-1", http.MethodPost, "/events/batch", batch)
	resp = s.do(t, "user-1", http.MethodPost, "/events/batch", batch)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	events := decode[[]models.Event](t, resp)
	require.Len(t, events, 1)
	require.Len(t, events[0].Tickets, 4)
	seen := make(map[string]bool)
	for _, tk := range events[0].Tickets {
		assert.NotEqual(t, "tkt_1", tk.ID)
		assert.False(t, seen[tk.ID], "duplicate ticket id %s", tk.ID)
		seen[tk.ID] = true
	}
}

func TestSignOutStoresAndReleasesSession(t *testing.T) {
	s := setupServer(t)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())
	require.Len(t, s.svc.ActiveWallets(), 1)

	resp := s.do(t, "user-1", http.MethodPost, "/signout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, s.svc.ActiveWallets())

	s.store.mu.Lock()
	stored := s.store.data["user-1"]
	s.store.mu.Unlock()
	assert.Len(t, stored, 2)

	resp = s.do(t, "user-1", http.MethodGet, "/events", nil)
	assert.Len(t, decode[[]models.Event](t, resp), 2)
}

func TestStatusForMigrationFailure(t *testing.T) {
	err := fmt.Errorf("%w: redis unavailable", service.ErrMigration)
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(err))
	assert.Equal(t, http.StatusBadRequest, statusFor(wallet.ErrInvalidDate))
}

func TestStreamOutlivesWriteTimeout(t *testing.T) {
	s := setupServerWithWriteTimeout(t, 300*time.Millisecond)
	s.do(t, "user-1", http.MethodPost, "/events/batch", concertPayloads())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+"/api/wallet/reminders/stream", nil)
	require.NoError(t, err)
	s.authorize(t, req, "user-1")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return s.emitter.Subscribers("user-1") == 1 }, time.Second, 10*time.Millisecond)

	time.Sleep(500 * time.Millisecond)
	sess, err := s.svc.Session(context.Background(), "user-1")
	require.NoError(t, err)
	sess.PushReminder(reminders.Notification{EventID: "evt_1", EventName: "Coldplay Live"})

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			assert.Contains(t, line, `"evt_1"`)
			return
		}
	}
}
