// Package timersync keeps a locally smooth countdown for one auction and asks the server
// for fresh state only when the local countdown runs out.
package timersync

import (
	"math"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/google/uuid"
)

// Snapshot is what the countdown needs from an auction snapshot.
type Snapshot struct {
	AuctionID        uuid.UUID
	Status           string
	StartTime        time.Time
	RegularEndTime   time.Time
	EffectiveEndTime time.Time
	OvertimeSeconds  int
	CurrentPrice     float64
	Sequence         int64
	ServerTime       time.Time
}

func FromDTO(dto application.SnapshotDTO) Snapshot {
	return Snapshot{
		AuctionID:        dto.AuctionID,
		Status:           dto.Status,
		StartTime:        dto.StartTime,
		RegularEndTime:   dto.RegularEndTime,
		EffectiveEndTime: dto.EffectiveEndTime,
		OvertimeSeconds:  dto.OvertimeSeconds,
		CurrentPrice:     dto.CurrentPrice,
		Sequence:         dto.Sequence,
		ServerTime:       dto.ServerTime,
	}
}

// Live reports whether the server may still change the auction's deadline or status.
func (s Snapshot) Live() bool {
	switch s.Status {
	case "SCHEDULED", "ACTIVE", "OVERTIME":
		return true
	default:
		return false
	}
}

// Deadline is the instant the countdown runs to: the start for a scheduled auction, the
// effective end otherwise.
func (s Snapshot) Deadline() time.Time {
	switch {
	case s.Status == "SCHEDULED":
		return s.StartTime
	case s.EffectiveEndTime.IsZero():
		return s.RegularEndTime
	default:
		return s.EffectiveEndTime
	}
}

// Countdown is what the display shows on each tick.
type Countdown struct {
	AuctionID    uuid.UUID
	Status       string
	Remaining    time.Duration
	Overtime     bool
	CurrentPrice float64
	Sequence     int64
}

// Seconds is the remaining time rounded up, so 0 shows only once the deadline is reached.
func (c Countdown) Seconds() int {
	return int(math.Ceil(c.Remaining.Seconds()))
}

// Remaining computes the time left on s at localNow. offset is the server clock minus the
// local clock, so a wrong local wall clock does not skew the countdown.
func Remaining(s Snapshot, offset time.Duration, localNow time.Time) time.Duration {
	if !s.Live() {
		return 0
	}
	left := s.Deadline().Sub(localNow.Add(offset))
	if left < 0 {
		return 0
	}
	return left
}

func countdownOf(s Snapshot, offset time.Duration, localNow time.Time) Countdown {
	return Countdown{
		AuctionID:    s.AuctionID,
		Status:       s.Status,
		Remaining:    Remaining(s, offset, localNow),
		Overtime:     s.Status == "OVERTIME",
		CurrentPrice: s.CurrentPrice,
		Sequence:     s.Sequence,
	}
}
