package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// insertEntries appends ledger entries inside the commit transaction. The (auction_id, seq)
// primary key rejects a replayed or concurrent sequence and aborts the whole commit.
func insertEntries(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query := `
        INSERT INTO ledger_entries (
            auction_id, seq, bid_id, bidder_id, amount, submitted_at, outcome, reason,
            after_status, after_price, after_highest_bidder_id, after_total_bids,
            after_effective_end_time, after_event_seq, after_server_time)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query,
			e.AuctionID,
			e.Seq,
			e.Bid.ID,
			nullUUID(e.Bid.BidderID),
			e.Bid.Amount,
			e.Bid.SubmittedAt,
			string(e.Bid.Outcome),
			string(e.Bid.Reason),
			string(e.After.Status),
			e.After.CurrentPrice,
			nullUUID(e.After.HighestBidderID),
			e.After.TotalBids,
			e.After.EffectiveEndTime,
			e.After.Sequence,
			e.After.ServerTime,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert ledger entries: %w", err)
	}
	return nil
}

// ListEntries pages through an auction's ledger in sequence order.
func (s *AuctionStore) ListEntries(ctx context.Context, auctionID uuid.UUID, afterSeq int64, limit int) ([]domain.LedgerEntry, error) {
	query := `
        SELECT l.seq, l.bid_id, l.bidder_id, l.amount, l.submitted_at, l.outcome, l.reason,
               l.after_status, l.after_price, l.after_highest_bidder_id, l.after_total_bids,
               l.after_effective_end_time, l.after_event_seq, l.after_server_time,
               a.item_name, a.start_time, a.regular_end_time, a.overtime_window_ms
        FROM ledger_entries l
        JOIN auctions a ON a.id = l.auction_id
        WHERE l.auction_id = $1 AND l.seq > $2
        ORDER BY l.seq ASC
        LIMIT $3
    `
	rows, err := s.pool.Query(ctx, query, auctionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			e          = domain.LedgerEntry{AuctionID: auctionID}
			bidder     uuid.NullUUID
			highest    uuid.NullUUID
			outcome    string
			reason     string
			status     string
			overtimeMs int64
		)
		err := rows.Scan(
			&e.Seq,
			&e.Bid.ID,
			&bidder,
			&e.Bid.Amount,
			&e.Bid.SubmittedAt,
			&outcome,
			&reason,
			&status,
			&e.After.CurrentPrice,
			&highest,
			&e.After.TotalBids,
			&e.After.EffectiveEndTime,
			&e.After.Sequence,
			&e.After.ServerTime,
			&e.After.ItemName,
			&e.After.StartTime,
			&e.After.RegularEndTime,
			&overtimeMs,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Bid.AuctionID = auctionID
		e.Bid.BidderID = bidder.UUID
		e.Bid.Outcome = domain.Outcome(outcome)
		e.Bid.Reason = domain.RejectReason(reason)
		e.After.AuctionID = auctionID
		e.After.Status = domain.AuctionStatus(status)
		e.After.HighestBidderID = highest.UUID
		e.After.OvertimeSeconds = int(time.Duration(overtimeMs) * time.Millisecond / time.Second)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	return entries, nil
}
