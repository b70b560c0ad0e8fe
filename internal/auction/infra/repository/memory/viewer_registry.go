package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ViewerRegistry implements domain.ViewerRegistry with a set per auction.
type ViewerRegistry struct {
	mu      sync.Mutex
	viewers map[uuid.UUID]map[string]struct{}
}

func NewViewerRegistry() *ViewerRegistry {
	return &ViewerRegistry{viewers: make(map[uuid.UUID]map[string]struct{})}
}

func (r *ViewerRegistry) Register(_ context.Context, auctionID uuid.UUID, viewerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.viewers[auctionID]
	if !ok {
		set = make(map[string]struct{})
		r.viewers[auctionID] = set
	}
	set[viewerID] = struct{}{}
	return int64(len(set)), nil
}

func (r *ViewerRegistry) Count(_ context.Context, auctionID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.viewers[auctionID])), nil
}
