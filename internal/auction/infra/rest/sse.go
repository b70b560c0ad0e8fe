package rest

import (
	"bufio"
	"strconv"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// events streams an auction's events as server-sent events. A reconnecting client sends
// Last-Event-ID (or ?after=) and gets the missed events, or a SNAPSHOT when they are no
// longer buffered.
func (h *AuctionHandler) events(c *fiber.Ctx) error {
	auctionID, err := auctionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	afterSeq, err := resumeSeq(c)
	if err != nil {
		return writeError(c, err)
	}
	subscriberID := c.Query("viewer")
	if subscriberID == "" {
		subscriberID = uuid.NewString()
	}

	sub, err := h.auctionService.Subscribe(c.UserContext(), auctionID, subscriberID, afterSeq)
	if err != nil {
		return writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		h.stream(w, sub, auctionID, afterSeq)
	})
	return nil
}

// stream writes the subscription to w until the handler closes, the subscriber is dropped
// or the peer goes away. A comment line is sent every heartbeat interval.
func (h *AuctionHandler) stream(w *bufio.Writer, sub *pubsub.Subscription, auctionID uuid.UUID, afterSeq int64) {
	defer sub.Close()
	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	log.Info("Event stream opened",
		zap.String("auctionID", auctionID.String()),
		zap.String("subscriberID", sub.ID),
		zap.Int64("afterSeq", afterSeq),
	)
	for {
		select {
		case <-h.closing:
			return
		case msg, ok := <-sub.C():
			if !ok {
				log.Info("Event stream ended by the broker, client must resume",
					zap.String("auctionID", auctionID.String()),
					zap.String("subscriberID", sub.ID),
				)
				return
			}
			writeSSE(w, msg, application.Frame(msg, h.auctionService.Now()))
		case <-ticker.Chan():
			_, _ = w.WriteString(": heartbeat\n\n")
		}
		if err := w.Flush(); err != nil {
			log.Debug("Event stream closed by peer",
				zap.String("auctionID", auctionID.String()),
				zap.String("subscriberID", sub.ID),
			)
			return
		}
	}
}

func writeSSE(w *bufio.Writer, msg pubsub.Message, frame []byte) {
	_, _ = w.WriteString("id: ")
	_, _ = w.WriteString(strconv.FormatInt(msg.Seq, 10))
	_, _ = w.WriteString("\nevent: ")
	_, _ = w.WriteString(msg.Type)
	_, _ = w.WriteString("\ndata: ")
	_, _ = w.Write(frame)
	_, _ = w.WriteString("\n\n")
}

func resumeSeq(c *fiber.Ctx) (int64, error) {
	raw := c.Get("Last-Event-ID")
	if raw == "" {
		raw = c.Query("after")
	}
	if raw == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0, badRequest("invalid resume sequence %q", raw)
	}
	return seq, nil
}
