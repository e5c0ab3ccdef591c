package api

import (
	"time"

	"github.com/blockrank/blockrank/internal/ranking"
	"github.com/blockrank/blockrank/internal/store"
)

// BlocksResponse is the paginated block listing.
type BlocksResponse struct {
	Blocks     []*store.Block   `json:"blocks"`
	Pagination PaginationResult `json:"pagination"`
}

// BlockDetailResponse is one block with its members ordered by seat position.
type BlockDetailResponse struct {
	Block   *store.Block         `json:"block"`
	Members []*store.BlockMember `json:"members"`
}

// TransactionsResponse is the paginated transaction listing of one user.
type TransactionsResponse struct {
	Transactions []*store.Transaction `json:"transactions"`
	Pagination   PaginationResult     `json:"pagination"`
}

// RankingResponse is the trend-annotated ranking of one level.
type RankingResponse struct {
	LevelID int                    `json:"level_id"`
	Day     uint64                 `json:"day"`
	Entries []*ranking.RankedBlock `json:"entries"`
}

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Total   int  `json:"total"`
	First   int  `json:"first"`
	Skip    int  `json:"skip"`
	HasMore bool `json:"has_more"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse reports indexer liveness and lag so callers can detect a
// stalled indexer before trusting query results.
type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	LastIndexedBlock uint64    `json:"last_indexed_block"`
	ChainHead        uint64    `json:"chain_head"`
	IndexingLag      uint64    `json:"indexing_lag"`
	WatchedSources   int       `json:"watched_sources"`
}
