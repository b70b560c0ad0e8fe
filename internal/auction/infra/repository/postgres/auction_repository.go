package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const auctionColumns = `
	id, item_name, item_description, item_image_url, status,
	start_time, regular_end_time, effective_end_time, overtime_window_ms,
	start_price, current_price, highest_bidder_id, total_bids,
	event_seq, ledger_seq, winner_id, winning_bid, ended_at, created_at, updated_at`

// AuctionStore implements domain.AuctionStore on PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new instance of AuctionStore
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

func (s *AuctionStore) Create(ctx context.Context, a *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
    `
	_, err := s.pool.Exec(ctx, query,
		a.ID,
		a.Item.Name,
		a.Item.Description,
		a.Item.ImageURL,
		string(a.Status),
		a.StartTime,
		a.RegularEndTime,
		a.EffectiveEndTime,
		a.OvertimeWindow.Milliseconds(),
		a.StartPrice,
		a.CurrentPrice,
		nullUUID(a.HighestBidderID),
		a.TotalBids,
		a.EventSeq,
		a.LedgerSeq,
		nullUUID(a.WinnerID),
		nullFloat(a.HasWinner(), a.WinningBid),
		a.EndedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert auction %s: %w", a.ID, err)
	}
	return nil
}

// Commit writes the auction row and its new ledger entries in one transaction.
func (s *AuctionStore) Commit(ctx context.Context, a *domain.Auction, entries ...domain.LedgerEntry) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin commit transaction: %w", err)
	}

	//config defer() to handles commit/rollback
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Warn("Rollback failed",
					zap.String("auctionID", a.ID.String()),
					zap.Error(rbErr),
				)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("postgres: commit auction %s: %w", a.ID, commitErr)
		}
	}()

	if err = s.update(ctx, tx, a); err != nil {
		return err
	}
	if err = insertEntries(ctx, tx, entries); err != nil {
		return err
	}
	return nil
}

func (s *AuctionStore) update(ctx context.Context, tx pgx.Tx, a *domain.Auction) error {
	query := `
        UPDATE auctions SET
            status = $2,
            effective_end_time = $3,
            current_price = $4,
            highest_bidder_id = $5,
            total_bids = $6,
            event_seq = $7,
            ledger_seq = $8,
            winner_id = $9,
            winning_bid = $10,
            ended_at = $11,
            updated_at = $12
        WHERE id = $1 AND event_seq <= $7 AND ledger_seq <= $8
    `
	tag, err := tx.Exec(ctx, query,
		a.ID,
		string(a.Status),
		a.EffectiveEndTime,
		a.CurrentPrice,
		nullUUID(a.HighestBidderID),
		a.TotalBids,
		a.EventSeq,
		a.LedgerSeq,
		nullUUID(a.WinnerID),
		nullFloat(a.HasWinner(), a.WinningBid),
		a.EndedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update auction %s: %w", a.ID, domain.ErrAuctionNotFound)
	}
	return nil
}

func (s *AuctionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	a, err := scanAuction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

func (s *AuctionStore) ListByStatus(ctx context.Context, statuses ...domain.AuctionStatus) ([]*domain.Auction, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ANY($1) ORDER BY start_time`
	return s.list(ctx, query, names)
}

// ListEndedBetween returns ENDED auctions with from <= ended_at <= to.
func (s *AuctionStore) ListEndedBetween(ctx context.Context, from, to time.Time) ([]*domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE status = $1 AND ended_at BETWEEN $2 AND $3
        ORDER BY ended_at DESC
    `
	return s.list(ctx, query, string(domain.StatusEnded), from, to)
}

func (s *AuctionStore) list(ctx context.Context, query string, args ...any) ([]*domain.Auction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	return auctions, nil
}

func scanAuction(row pgx.Row) (*domain.Auction, error) {
	var (
		a          domain.Auction
		status     string
		overtimeMs int64
		highest    uuid.NullUUID
		winner     uuid.NullUUID
		winningBid *float64
	)
	err := row.Scan(
		&a.ID,
		&a.Item.Name,
		&a.Item.Description,
		&a.Item.ImageURL,
		&status,
		&a.StartTime,
		&a.RegularEndTime,
		&a.EffectiveEndTime,
		&overtimeMs,
		&a.StartPrice,
		&a.CurrentPrice,
		&highest,
		&a.TotalBids,
		&a.EventSeq,
		&a.LedgerSeq,
		&winner,
		&winningBid,
		&a.EndedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.AuctionStatus(status)
	a.OvertimeWindow = time.Duration(overtimeMs) * time.Millisecond
	a.HighestBidderID = highest.UUID
	a.WinnerID = winner.UUID
	if winningBid != nil {
		a.WinningBid = *winningBid
	}
	return &a, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func nullFloat(valid bool, v float64) *float64 {
	if !valid {
		return nil
	}
	return &v
}
