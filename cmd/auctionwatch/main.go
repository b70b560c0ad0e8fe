// Command auctionwatch follows one auction's event stream and prints a countdown that
// stays in step with the server clock.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cristianortiz/liveAuction/internal/auction/timersync"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := logger.GetLogger()
	defer log.Sync()

	server := pflag.StringP("server", "s", "http://localhost:9000", "auction server base URL")
	auction := pflag.StringP("auction", "a", "", "auction id to follow")
	pflag.Parse()

	auctionID, err := uuid.Parse(*auction)
	if err != nil {
		log.Fatal("A valid --auction id is required", zap.String("auction", *auction))
	}
	baseURL := strings.TrimRight(*server, "/")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	countdown := timersync.New(clock, auctionID, timersync.NewHTTPRefresher(baseURL), timersync.DefaultConfig(), printCountdown(log))
	stream := newStream(clock, wsURL(baseURL, auctionID), countdown)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return countdown.Run(ctx) })
	g.Go(func() error { return stream.Run(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("auctionwatch stopped", zap.Error(err))
	}
}

func printCountdown(log *zap.Logger) func(timersync.Countdown) {
	last := -1
	return func(c timersync.Countdown) {
		secs := c.Seconds()
		if secs == last && secs > 0 {
			return
		}
		last = secs
		log.Info("Countdown",
			zap.String("auctionID", c.AuctionID.String()),
			zap.String("status", c.Status),
			zap.Int("secondsLeft", secs),
			zap.Bool("overtime", c.Overtime),
			zap.Float64("currentPrice", c.CurrentPrice),
			zap.Int64("sequence", c.Sequence),
		)
	}
}

func wsURL(baseURL string, auctionID uuid.UUID) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		baseURL = "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		baseURL = "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL + "/ws/auctions/" + auctionID.String()
}
