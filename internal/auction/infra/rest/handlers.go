// Package rest exposes the auction module over HTTP: JSON endpoints plus a
// server-sent events stream per auction.
package rest

import (
	"strings"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var log = logger.GetLogger()

const (
	HeaderBidderID = "X-Bidder-ID"

	defaultEndedWindow = 24 * time.Hour
	monthLayout        = "2006-01"
)

// AuctionHandler serves the auction HTTP API.
type AuctionHandler struct {
	auctionService application.AuctionService
	clock          clockwork.Clock
	heartbeat      time.Duration
	closing        chan struct{}
}

func NewAuctionHandler(auctionService application.AuctionService, clock clockwork.Clock, heartbeat time.Duration) *AuctionHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &AuctionHandler{
		auctionService: auctionService,
		clock:          clock,
		heartbeat:      heartbeat,
		closing:        make(chan struct{}),
	}
}

// Close ends every open event stream so the server can drain.
func (h *AuctionHandler) Close() {
	select {
	case <-h.closing:
	default:
		close(h.closing)
	}
}

func (h *AuctionHandler) RegisterRoutes(router fiber.Router) {
	api := router.Group("/api/auctions")
	api.Post("/", h.createAuction)
	api.Get("/active", h.activeAuctions)
	api.Get("/scheduled", h.scheduledAuctions)
	api.Get("/ended", h.endedAuctions)
	api.Get("/winners", h.monthlyWinners)
	api.Get("/:id", h.getAuction)
	api.Get("/:id/bids", h.bidHistory)
	api.Post("/:id/bids", h.placeBid)
	api.Post("/:id/cancel", h.cancelAuction)
	api.Post("/:id/viewers", h.registerViewer)
	api.Get("/:id/viewers/count", h.viewerCount)
	api.Get("/:id/events", h.events)
}

type placeBidRequest struct {
	BidderID string   `json:"bidder_id"`
	Amount   *float64 `json:"amount"`
}

func (h *AuctionHandler) placeBid(c *fiber.Ctx) error {
	auctionID, err := auctionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	var req placeBidRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, badRequest("malformed bid body"))
	}
	if req.Amount == nil {
		return writeError(c, badRequest("amount is required"))
	}

	// identity is authenticated upstream; the header wins over the body
	rawBidder := strings.TrimSpace(c.Get(HeaderBidderID))
	if rawBidder == "" {
		rawBidder = strings.TrimSpace(req.BidderID)
	}
	bidderID := uuid.Nil
	if rawBidder != "" {
		if bidderID, err = uuid.Parse(rawBidder); err != nil {
			return writeError(c, badRequest("invalid bidder id %q", rawBidder))
		}
	}

	result, err := h.auctionService.PlaceBid(c.UserContext(), application.PlaceBidDTO{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    *req.Amount,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(bidStatus(result.Outcome)).JSON(result)
}

func (h *AuctionHandler) getAuction(c *fiber.Ctx) error {
	auctionID, err := auctionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	snap, err := h.auctionService.GetAuctionState(c.UserContext(), auctionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(snap)
}

func (h *AuctionHandler) createAuction(c *fiber.Ctx) error {
	var req application.CreateAuctionDTO
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, badRequest("malformed auction body"))
	}
	snap, err := h.auctionService.CreateAuction(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(snap)
}

func (h *AuctionHandler) cancelAuction(c *fiber.Ctx) error {
	auctionID, err := auctionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	snap, err := h.auctionService.CancelAuction(c.UserContext(), auctionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(snap)
}

func (h *AuctionHandler) activeAuctions(c *fiber.Ctx) error {
	auctions, err := h.auctionService.ActiveAuctions(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(auctions)
}

func (h *AuctionHandler) scheduledAuctions(c *fiber.Ctx) error {
	auctions, err := h.auctionService.ScheduledAuctions(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(auctions)
}

// endedAuctions takes ?since=<RFC3339>, defaulting to the last 24 hours.
func (h *AuctionHandler) endedAuctions(c *fiber.Ctx) error {
	since := h.auctionService.Now().Add(-defaultEndedWindow)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return writeError(c, badRequest("since must be RFC3339, got %q", raw))
		}
		since = t
	}
	auctions, err := h.auctionService.EndedAuctions(c.UserContext(), since)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(auctions)
}

// monthlyWinners takes ?month=YYYY-MM, defaulting to the current month.
func (h *AuctionHandler) monthlyWinners(c *fiber.Ctx) error {
	month := h.auctionService.Now()
	if raw := c.Query("month"); raw != "" {
		t, err := time.Parse(monthLayout, raw)
		if err != nil {
			return writeError(c, badRequest("month must look like %s, got %q", monthLayout, raw))
		}
		month = t
	}
	auctions, err := h.auctionService.MonthlyWinners(c.UserContext(), month)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(auctions)
}

func (h *AuctionHandler) bidHistory(c *fiber.Ctx) error {
	auctionID, err := auctionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	entries, err := h.auctionService.BidHistory(c.UserContext(), auctionID,
		int64(c.QueryInt("after", 0)), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(entries)
}

type registerViewerRequest struct {
	ViewerID string `json:"viewer_id"`
}

func (h *AuctionHandler) registerViewer(c *fiber.Ctx) error {
	auctionID, err := auctionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	var req registerViewerRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, badRequest("malformed viewer body"))
	}
	count, err := h.auctionService.RegisterViewer(c.UserContext(), auctionID, req.ViewerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"auction_id": auctionID, "viewer_count": count})
}

func (h *AuctionHandler) viewerCount(c *fiber.Ctx) error {
	auctionID, err := auctionIDParam(c)
	if err != nil {
		return writeError(c, err)
	}
	count, err := h.auctionService.ViewerCount(c.UserContext(), auctionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"auction_id": auctionID, "viewer_count": count})
}

func auctionIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, badRequest("invalid auction id %q", c.Params("id"))
	}
	return id, nil
}
