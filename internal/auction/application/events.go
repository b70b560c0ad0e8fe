package application

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/google/uuid"
)

// SnapshotDTO is the wire form of an auction snapshot.
type SnapshotDTO struct {
	AuctionID        uuid.UUID  `json:"auction_id"`
	ItemName         string     `json:"item_name"`
	Status           string     `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	RegularEndTime   time.Time  `json:"regular_end_time"`
	EffectiveEndTime time.Time  `json:"effective_end_time"`
	OvertimeSeconds  int        `json:"overtime_seconds"`
	CurrentPrice     float64    `json:"current_price"`
	HighestBidderID  *uuid.UUID `json:"highest_bidder_id,omitempty"`
	TotalBids        int        `json:"total_bids"`
	ViewerCount      int64      `json:"viewer_count"`
	Sequence         int64      `json:"sequence"`
	ServerTime       time.Time  `json:"server_time"`
}

func NewSnapshotDTO(s domain.Snapshot) SnapshotDTO {
	dto := SnapshotDTO{
		AuctionID:        s.AuctionID,
		ItemName:         s.ItemName,
		Status:           string(s.Status),
		StartTime:        s.StartTime,
		RegularEndTime:   s.RegularEndTime,
		EffectiveEndTime: s.EffectiveEndTime,
		OvertimeSeconds:  s.OvertimeSeconds,
		CurrentPrice:     s.CurrentPrice,
		TotalBids:        s.TotalBids,
		ViewerCount:      s.ViewerCount,
		Sequence:         s.Sequence,
		ServerTime:       s.ServerTime,
	}
	if s.HighestBidderID != uuid.Nil {
		bidder := s.HighestBidderID
		dto.HighestBidderID = &bidder
	}
	return dto
}

// BidDTO is the wire form of an adjudicated bid.
type BidDTO struct {
	ID          uuid.UUID `json:"id"`
	AuctionID   uuid.UUID `json:"auction_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	Amount      float64   `json:"amount"`
	SubmittedAt time.Time `json:"submitted_at"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
}

func NewBidDTO(b domain.Bid) BidDTO {
	return BidDTO{
		ID:          b.ID,
		AuctionID:   b.AuctionID,
		BidderID:    b.BidderID,
		Amount:      b.Amount,
		SubmittedAt: b.SubmittedAt,
		Outcome:     string(b.Outcome),
		Reason:      string(b.Reason),
	}
}

// EventDTO is the wire form of an auction event. Snapshot is kept pre-encoded so the
// same bytes serve both the event and the broadcaster's resync point.
type EventDTO struct {
	Sequence   int64           `json:"sequence"`
	Type       string          `json:"type"`
	AuctionID  uuid.UUID       `json:"auction_id"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	Snapshot   json.RawMessage `json:"snapshot"`
	Bid        *BidDTO         `json:"bid,omitempty"`
}

// EncodeSnapshot returns the JSON of a snapshot as stored in broadcaster topics.
func EncodeSnapshot(s domain.Snapshot) ([]byte, error) {
	data, err := json.Marshal(NewSnapshotDTO(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot for auction %s: %w", s.AuctionID, err)
	}
	return data, nil
}

// EncodeEvent turns a domain event into a broadcaster message. It runs once per event,
// never per subscriber.
func EncodeEvent(ev domain.Event) (pubsub.Message, error) {
	snap, err := EncodeSnapshot(ev.Snapshot)
	if err != nil {
		return pubsub.Message{}, err
	}

	occurredAt := ev.OccurredAt
	dto := EventDTO{
		Sequence:   ev.Sequence,
		Type:       string(ev.Type),
		AuctionID:  ev.AuctionID,
		OccurredAt: &occurredAt,
		Snapshot:   snap,
	}
	if ev.Bid != nil {
		bid := NewBidDTO(*ev.Bid)
		dto.Bid = &bid
	}

	data, err := json.Marshal(dto)
	if err != nil {
		return pubsub.Message{}, fmt.Errorf("failed to encode %s event for auction %s: %w", ev.Type, ev.AuctionID, err)
	}
	return pubsub.Message{
		Topic:    ev.AuctionID.String(),
		Seq:      ev.Sequence,
		Type:     string(ev.Type),
		Data:     data,
		Snapshot: snap,
	}, nil
}

// Frame renders a broadcaster message for the wire:
//
//	{"server_time": <send time>, "event": <EventDTO>}
//
// server_time is stamped at send so clients can estimate their clock offset even for
// replayed events.
func Frame(msg pubsub.Message, now time.Time) []byte {
	event := msg.Data
	if msg.Type == pubsub.TypeSnapshot {
		auctionID, _ := uuid.Parse(msg.Topic)
		event, _ = json.Marshal(EventDTO{
			Sequence:  msg.Seq,
			Type:      pubsub.TypeSnapshot,
			AuctionID: auctionID,
			Snapshot:  msg.Snapshot,
		})
	}

	buf := make([]byte, 0, len(event)+64)
	buf = append(buf, `{"server_time":`...)
	buf = now.UTC().AppendFormat(append(buf, '"'), time.RFC3339Nano)
	buf = append(buf, `","event":`...)
	buf = append(buf, event...)
	return append(buf, '}')
}
