package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/auction/infra/repository/memory"
	"github.com/cristianortiz/liveAuction/internal/shared/metrics"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	app     *fiber.App
	clock   *clockwork.FakeClock
	engine  *application.Engine
	handler *AuctionHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	store := memory.NewAuctionStore()
	m := metrics.New()
	engine := application.NewEngine(clock, store, pubsub.NewBroker(pubsub.DefaultConfig(), m), m, application.EngineConfig{
		Policy:         domain.Policy{MaxBidAmount: 1_000_000},
		OvertimeWindow: 30 * time.Second,
		QueueDepth:     16,
		AdmissionWait:  time.Second,
	}, application.Collaborators{})
	t.Cleanup(engine.Close)

	svc := application.NewAuctionService(engine, application.NewUseCases(engine, store, memory.NewViewerRegistry(), nil, false))
	handler := NewAuctionHandler(svc, clock, time.Second)
	t.Cleanup(handler.Close)

	app := fiber.New()
	handler.RegisterRoutes(app)
	return &testServer{app: app, clock: clock, engine: engine, handler: handler}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// createLive schedules an auction priced at 50 starting now, moves the clock into it and
// applies the start transition.
func (s *testServer) createLive(t *testing.T) uuid.UUID {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/auctions/", application.CreateAuctionDTO{
		ItemName:       "Vintage lamp",
		StartPrice:     50,
		StartTime:      t0,
		RegularEndTime: t0.Add(time.Minute),
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var snap application.SnapshotDTO
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "SCHEDULED", snap.Status)
	s.clock.Advance(10 * time.Second)
	require.NoError(t, s.engine.Tick(context.Background(), snap.AuctionID))
	return snap.AuctionID
}

func TestAuctionHandler_PlaceBid(t *testing.T) {
	s := newTestServer(t)
	id := s.createLive(t)
	path := "/api/auctions/" + id.String() + "/bids"
	alice, bob := uuid.New(), uuid.New()

	t.Run("Accepted", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, path, map[string]any{"amount": 60}, HeaderBidderID, alice.String())
		require.Equal(t, http.StatusOK, status, string(body))

		var result application.BidResultDTO
		require.NoError(t, json.Unmarshal(body, &result))
		assert.True(t, result.Accepted())
		assert.Equal(t, 60.0, result.CurrentPrice)
		assert.Equal(t, int64(1), result.LedgerSeq)
		assert.Equal(t, "ACTIVE", result.Snapshot.Status)
	})

	t.Run("Stale Price Conflicts", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, path, map[string]any{"bidder_id": bob.String(), "amount": 60})
		require.Equal(t, http.StatusConflict, status, string(body))
		assert.Contains(t, string(body), "REJECTED_STALE_PRICE")
	})

	t.Run("Amount Above Ceiling Is Unprocessable", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, path, map[string]any{"amount": 2_000_000}, HeaderBidderID, bob.String())
		require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
		assert.Contains(t, string(body), "above_ceiling")
	})

	t.Run("Missing Bidder Is Adjudicated As Invalid", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, path, map[string]any{"amount": 70})
		require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
		assert.Contains(t, string(body), "missing_bidder")
	})

	t.Run("Malformed Requests Are Refused Before Adjudication", func(t *testing.T) {
		status, _ := s.do(t, http.MethodPost, path, map[string]any{"bidder_id": bob.String()})
		assert.Equal(t, http.StatusBadRequest, status, "amount is required")

		status, _ = s.do(t, http.MethodPost, path, map[string]any{"amount": 70}, HeaderBidderID, "not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, status)

		status, _ = s.do(t, http.MethodPost, "/api/auctions/nope/bids", map[string]any{"amount": 70})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Unknown Auction", func(t *testing.T) {
		status, _ := s.do(t, http.MethodPost, "/api/auctions/"+uuid.NewString()+"/bids", map[string]any{"amount": 70}, HeaderBidderID, bob.String())
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("History Lists Every Attempt", func(t *testing.T) {
		status, body := s.do(t, http.MethodGet, path+"?after=1&limit=10", nil)
		require.Equal(t, http.StatusOK, status, string(body))

		var entries []application.LedgerEntryDTO
		require.NoError(t, json.Unmarshal(body, &entries))
		require.Len(t, entries, 3)
		assert.Equal(t, int64(2), entries[0].Seq)
		assert.Equal(t, "REJECTED_STALE_PRICE", entries[0].Bid.Outcome)
	})
}

func TestAuctionHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/auctions/", application.CreateAuctionDTO{
		ItemName:       "Clock",
		StartPrice:     10,
		StartTime:      t0.Add(time.Hour),
		RegularEndTime: t0,
	})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	id := s.createLive(t)

	status, body = s.do(t, http.MethodGet, "/api/auctions/active", nil)
	require.Equal(t, http.StatusOK, status)
	var active []application.AuctionDTO
	require.NoError(t, json.Unmarshal(body, &active))
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].ID)

	status, body = s.do(t, http.MethodPost, "/api/auctions/"+id.String()+"/viewers", map[string]string{"viewer_id": "v-1"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"viewer_count":1`)

	status, _ = s.do(t, http.MethodPost, "/api/auctions/"+id.String()+"/viewers", map[string]string{"viewer_id": " "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/api/auctions/"+id.String(), nil)
	require.Equal(t, http.StatusOK, status)
	var snap application.SnapshotDTO
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "ACTIVE", snap.Status)
	assert.Equal(t, int64(1), snap.ViewerCount)

	status, body = s.do(t, http.MethodPost, "/api/auctions/"+id.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"status":"CANCELLED"`)

	status, _ = s.do(t, http.MethodPost, "/api/auctions/"+id.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodPost, "/api/auctions/"+id.String()+"/bids", map[string]any{"amount": 70}, HeaderBidderID, uuid.NewString())
	assert.Equal(t, http.StatusConflict, status, "a cancelled auction rejects bids as closed")
}

func TestAuctionHandler_EventsUnknownAuction(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/api/auctions/"+uuid.NewString()+"/events", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodGet, "/api/auctions/"+uuid.NewString()+"/events?after=x", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuctionHandler_StreamHeartbeat(t *testing.T) {
	s := newTestServer(t)
	m := metrics.New()
	broker := pubsub.NewBroker(pubsub.DefaultConfig(), m)
	broker.Open("a", 0, []byte(`{}`))
	sub, err := broker.Subscribe("a", "viewer-1", 0)
	require.NoError(t, err)

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handler.stream(bufio.NewWriter(pw), sub, uuid.New(), 0)
		pw.Close()
	}()
	lines := bufio.NewReader(pr)
	readLine := func() string {
		line, err := lines.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimSuffix(line, "\n")
	}

	assert.Equal(t, "id: 0", readLine())
	assert.Equal(t, "event: SNAPSHOT", readLine())
	readLine()
	assert.Empty(t, readLine())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.clock.BlockUntilContext(ctx, 1))
	s.clock.Advance(time.Second)
	assert.Equal(t, ": heartbeat", readLine())
	assert.Empty(t, readLine())

	s.handler.Close()
	_, err = io.ReadAll(pr)
	require.NoError(t, err)
	<-done
	assert.Zero(t, broker.Subscribers("a"), "the subscription is released with the stream")
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	msg := pubsub.Message{Topic: uuid.NewString(), Seq: 7, Type: "BID_ACCEPTED", Data: []byte(`{"sequence":7}`)}

	writeSSE(w, msg, application.Frame(msg, t0))
	require.NoError(t, w.Flush())

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "id: 7", lines[0])
	assert.Equal(t, "event: BID_ACCEPTED", lines[1])
	assert.Equal(t, `data: {"server_time":"2025-03-01T12:00:00Z","event":{"sequence":7}}`, lines[2])
	assert.Empty(t, lines[3])
}
