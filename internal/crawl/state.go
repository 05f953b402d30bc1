package crawl

import (
	"context"
	"fmt"

	"campusrag/internal/clock"
	"campusrag/internal/store"
	"campusrag/internal/types"
)

// StateManager implements the Crawl State Manager contract: per-board
// last-processed-id tracking and range computation.
type StateManager struct {
	docs       store.DocumentStore
	collection string
}

func NewStateManager(docs store.DocumentStore) *StateManager {
	return &StateManager{docs: docs, collection: "crawl_state"}
}

// GetLastProcessedID returns the board's last-processed id, or ok=false if
// no state has been recorded yet.
func (m *StateManager) GetLastProcessedID(ctx context.Context, board types.BoardType) (int, bool, error) {
	doc, err := m.docs.FindOne(ctx, m.collection, store.Document{"_id": string(board)})
	if err != nil {
		if err == store.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	id, ok := asInt(doc["last_processed_id"])
	if !ok {
		return 0, false, nil
	}
	return id, true, nil
}

// asInt handles both native int (in-memory backend) and float64 (JSON
// round-tripped through the postgres JSONB backend) numeric encodings.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// UpdateLastProcessedID upserts the board's crawl state.
func (m *StateManager) UpdateLastProcessedID(ctx context.Context, board types.BoardType, id, processedCount int) error {
	set := store.Document{
		"_id":               string(board),
		"board_type":        string(board),
		"last_processed_id": id,
		"processed_count":   processedCount,
		"last_updated":      clock.ToISO8601(clock.Now()),
	}
	return m.docs.UpdateOne(ctx, m.collection, store.Document{"_id": string(board)}, set, true)
}

// GetCrawlRange computes the inclusive id range to crawl:
// - no prior state + a configured floor: [currentMaxID, floor] descending
// - prior state and currentMaxID > last: [currentMaxID, last+1]
// - otherwise: empty
func (m *StateManager) GetCrawlRange(ctx context.Context, board types.BoardType, currentMaxID, idFloor int) ([2]int, bool, error) {
	last, ok, err := m.GetLastProcessedID(ctx, board)
	if err != nil {
		return [2]int{}, false, fmt.Errorf("crawl: get crawl range: %w", err)
	}
	if !ok {
		if idFloor > 0 {
			return [2]int{currentMaxID, idFloor}, true, nil
		}
		return [2]int{}, false, nil
	}
	if currentMaxID > last {
		return [2]int{currentMaxID, last + 1}, true, nil
	}
	return [2]int{}, false, nil
}
