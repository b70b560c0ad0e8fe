package timersync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HTTPRefresher reads GET <baseURL>/api/auctions/<id> with fiber's client agent.
type HTTPRefresher struct {
	baseURL string
}

func NewHTTPRefresher(baseURL string) *HTTPRefresher {
	return &HTTPRefresher{baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, auctionID uuid.UUID) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	agent := fiber.Get(r.baseURL + "/api/auctions/" + auctionID.String())
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return Snapshot{}, fmt.Errorf("failed to refresh auction %s: %w", auctionID, errs[0])
	}
	if code != fiber.StatusOK {
		return Snapshot{}, fmt.Errorf("failed to refresh auction %s: status %d", auctionID, code)
	}

	var dto application.SnapshotDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot of auction %s: %w", auctionID, err)
	}
	return FromDTO(dto), nil
}
