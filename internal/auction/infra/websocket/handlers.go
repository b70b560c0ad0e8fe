package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/cristianortiz/liveAuction/internal/shared/websocket"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	localAuctionID = "auctionID"
	localBidderID  = "bidderID"
	localAfterSeq  = "afterSeq"
)

// AuctionWSHandler handles the ws connections and inbound msgs of the auction module
type AuctionWSHandler struct {
	ctx            context.Context            // server lifetime; ends every connection when done
	auctionService application.AuctionService // application layer dependency
	hub            *websocket.Hub             // shared hub dependency
}

// NewAuctionWSHandler creates a new instance of AuctionWSHandler. Messages the hub cannot
// queue are answered as busy.
func NewAuctionWSHandler(ctx context.Context, auctionService application.AuctionService, hub *websocket.Hub) *AuctionWSHandler {
	h := &AuctionWSHandler{
		ctx:            ctx,
		auctionService: auctionService,
		hub:            hub,
	}
	hub.SetOverflowHandler(h.rejectOverflow)
	return h
}

// RegisterRoutes mounts GET /ws/auctions/:id. Query: after=<last seen sequence>,
// bidder=<bidder id used for client_bid messages without one>.
func (h *AuctionWSHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws/auctions/:id", h.preflight, fiberws.New(h.serve))
}

// preflight validates the request before the upgrade so errors are plain HTTP responses.
func (h *AuctionWSHandler) preflight(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	auctionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid auction id")
	}
	if _, err := h.auctionService.GetAuctionState(c.UserContext(), auctionID); err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, domain.ErrAuctionNotFound.Error())
		}
		return err
	}
	bidderID := uuid.Nil
	if raw := c.Query("bidder"); raw != "" {
		if bidderID, err = uuid.Parse(raw); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid bidder id")
		}
	}
	var afterSeq int64
	if raw := c.Query("after"); raw != "" {
		if afterSeq, err = strconv.ParseInt(raw, 10, 64); err != nil || afterSeq < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid resume sequence")
		}
	}

	c.Locals(localAuctionID, auctionID)
	c.Locals(localBidderID, bidderID)
	c.Locals(localAfterSeq, afterSeq)
	return c.Next()
}

// serve runs for the lifetime of one connection.
func (h *AuctionWSHandler) serve(conn *fiberws.Conn) {
	auctionID, _ := conn.Locals(localAuctionID).(uuid.UUID)
	bidderID, _ := conn.Locals(localBidderID).(uuid.UUID)
	afterSeq, _ := conn.Locals(localAfterSeq).(int64)
	clientID := uuid.NewString()

	sub, err := h.auctionService.Subscribe(h.ctx, auctionID, clientID, afterSeq)
	if err != nil {
		log.Warn("WebSocket subscription refused", zap.String("auctionID", auctionID.String()), zap.Error(err))
		_ = conn.WriteMessage(fiberws.TextMessage, errorMessage("subscription failed", false))
		return
	}

	client := websocket.NewClient(h.hub, conn, clientID, auctionID.String(), sub, h.render)
	client.UserID = bidderID
	if !h.hub.RegisterClient(h.ctx, client) {
		return
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		client.WritePump()
	}()
	client.ReadPump(h.ctx)
	<-written
}

func (h *AuctionWSHandler) render(msg pubsub.Message) []byte {
	return eventEnvelope(application.Frame(msg, h.auctionService.Now()))
}

// ListenForMessages starts a go routine that listen the Hub inbound channel for messages and proccess every one of them
func (h *AuctionWSHandler) ListenForMessages(ctx context.Context) {
	log.Info("AuctionWSHandler started listening for inbound messages from hub")
	for {
		select {
		case <-ctx.Done():
			log.Info("AuctionWSHandler stopped listening for inbound messages from hub")
			return
		case msg := <-h.hub.InboundMessages:
			go h.processMessage(ctx, msg.Client, msg.Data)
		}
	}
}

// processMesssage dispatch the message by this type
func (h *AuctionWSHandler) processMessage(ctx context.Context, client *websocket.Client, data []byte) {
	var baseMsg BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		h.sendErrorToClient(client, "invalid message format", false)
		return
	}
	switch baseMsg.Type {
	case MessageTypeClientBid:
		h.handleClientBidMessage(ctx, client, data)
	default:
		h.sendErrorToClient(client, "unknown message type", false)
	}
}

func (h *AuctionWSHandler) handleClientBidMessage(ctx context.Context, client *websocket.Client, data []byte) {
	var bidMsg ClientBidMessage
	if err := json.Unmarshal(data, &bidMsg); err != nil || bidMsg.Payload.Amount == nil {
		h.sendErrorToClient(client, "invalid bid message format", false)
		return
	}

	if bidMsg.Payload.AuctionID != uuid.Nil && bidMsg.Payload.AuctionID.String() != client.Topic {
		h.sendErrorToClient(client, "auction ID mismatch", false)
		return
	}
	auctionID, _ := uuid.Parse(client.Topic)
	bidderID := bidMsg.Payload.BidderID
	if bidderID == uuid.Nil {
		bidderID = client.UserID
	}

	result, err := h.auctionService.PlaceBid(ctx, application.PlaceBidDTO{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    *bidMsg.Payload.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBusy):
			h.sendErrorToClient(client, domain.ErrBusy.Error(), true)
		case errors.Is(err, domain.ErrAuctionNotFound):
			h.sendErrorToClient(client, domain.ErrAuctionNotFound.Error(), false)
		default:
			// storage and standing failures leave the auction untouched
			h.sendErrorToClient(client, "bid not processed, try again", true)
		}
		return
	}

	reply, err := json.Marshal(ServerBidResultMessage{
		BaseMessage: BaseMessage{Type: MessageTypeServerBidResult},
		Payload:     result,
	})
	if err != nil {
		log.Error("failed to marshal ServerBidResultMessage", zap.Error(err))
		return
	}
	client.Deliver(reply)
}

func (h *AuctionWSHandler) rejectOverflow(client *websocket.Client, _ []byte) {
	h.sendErrorToClient(client, domain.ErrBusy.Error(), true)
}

// sendErrorToClient serializes and sends an error msg to a specific client
func (h *AuctionWSHandler) sendErrorToClient(client *websocket.Client, text string, retryable bool) {
	if data := errorMessage(text, retryable); data != nil {
		client.Deliver(data)
	}
}

func errorMessage(text string, retryable bool) []byte {
	errMsg := ServerErrorMessage{BaseMessage: BaseMessage{Type: MessageTypeServerError}}
	errMsg.Payload.Error = text
	errMsg.Payload.Retryable = retryable
	data, err := json.Marshal(errMsg)
	if err != nil {
		log.Error("failed to marshal ServerErrorMessage", zap.Error(err))
		return nil
	}
	return data
}
