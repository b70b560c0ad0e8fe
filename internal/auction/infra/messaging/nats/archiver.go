// Package nats hands committed ledger entries and closed auctions to the history
// collaborator through a JetStream stream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	StreamName = "AUCTION_HISTORY"

	ledgerSubject = "auction.ledger"
	closedSubject = "auction.closed"
)

// Connect dials NATS and keeps reconnecting for as long as the process runs.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("live-auction"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Archiver implements domain.Archiver. Every message carries a deterministic id so the
// stream's duplicate window absorbs retries.
type Archiver struct {
	js jetstream.JetStream
}

// NewArchiver ensures the history stream exists.
func NewArchiver(ctx context.Context, nc *nats.Conn) (*Archiver, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Adjudicated bids and closed auctions for the history service",
		Subjects:    []string{ledgerSubject + ".*", closedSubject + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Duplicates:  10 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	log.Info("JetStream history stream ready", zap.String("stream", StreamName))
	return &Archiver{js: js}, nil
}

func (a *Archiver) ArchiveEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	for _, entry := range entries {
		data, err := json.Marshal(newLedgerRecord(entry))
		if err != nil {
			return fmt.Errorf("failed to marshal ledger entry %d: %w", entry.Seq, err)
		}
		ack, err := a.js.Publish(ctx, subject(ledgerSubject, entry.AuctionID), data,
			jetstream.WithMsgID(ledgerMsgID(entry)))
		if err != nil {
			return fmt.Errorf("failed to publish ledger entry %d to JetStream: %w", entry.Seq, err)
		}
		log.Debug("Ledger entry archived",
			zap.String("auctionID", entry.AuctionID.String()),
			zap.Int64("seq", entry.Seq),
			zap.Uint64("streamSeq", ack.Sequence),
			zap.Bool("duplicate", ack.Duplicate),
		)
	}
	return nil
}

func (a *Archiver) ArchiveAuction(ctx context.Context, record domain.ArchiveRecord) error {
	data, err := json.Marshal(newAuctionRecord(record))
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}
	if _, err := a.js.Publish(ctx, subject(closedSubject, record.AuctionID), data,
		jetstream.WithMsgID(record.AuctionID.String()+"-closed")); err != nil {
		return fmt.Errorf("failed to publish closed auction to JetStream: %w", err)
	}
	log.Info("Closed auction archived",
		zap.String("auctionID", record.AuctionID.String()),
		zap.String("status", string(record.Status)),
	)
	return nil
}

func subject(prefix string, auctionID uuid.UUID) string {
	return prefix + "." + auctionID.String()
}

func ledgerMsgID(entry domain.LedgerEntry) string {
	return fmt.Sprintf("%s-%d", entry.AuctionID, entry.Seq)
}
