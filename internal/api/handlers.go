package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/ranking"
	"github.com/blockrank/blockrank/internal/rpc"
	"github.com/blockrank/blockrank/internal/store"
)

// SourceCounter reports how many contract addresses the pipeline watches.
type SourceCounter interface {
	Count() int
}

// Handler handles HTTP requests for the query API.
type Handler struct {
	store   *store.Store
	engine  *ranking.Engine
	sources SourceCounter
	rpc     rpc.EthClient
	log     *logger.Logger
	now     func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(s *store.Store, engine *ranking.Engine, sources SourceCounter,
	rpcClient rpc.EthClient, log *logger.Logger) *Handler {
	return &Handler{
		store:   s,
		engine:  engine,
		sources: sources,
		rpc:     rpcClient,
		log:     log,
		now:     time.Now,
	}
}

// ListBlocks returns blocks matching the query filters.
// @Summary List blocks
// @Description List savings-circle blocks with filtering, ordering and pagination
// @Tags Blocks
// @Produce json
// @Param level query int false "Filter by level"
// @Param status query string false "Filter by status" Enums(active, completed)
// @Param owner query string false "Filter by owner address"
// @Param order_by query string false "Field to order by" default(created_at)
// @Param order_direction query string false "Order direction" Enums(asc, desc)
// @Param first query int false "Maximum number of blocks to return" default(100)
// @Param skip query int false "Number of blocks to skip" default(0)
// @Success 200 {object} BlocksResponse "List of blocks with pagination info"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /blocks [get]
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBlockFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	orderBy, desc, err := parseOrdering(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	first, skip, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	blocks, err := h.store.QueryBlocks(r.Context(), filter, orderBy, desc, first, skip)
	if err != nil {
		h.log.Errorf("Failed to query blocks: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query blocks")
		return
	}

	total, err := h.store.CountBlocks(r.Context(), filter)
	if err != nil {
		h.log.Errorf("Failed to count blocks: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query blocks")
		return
	}

	if blocks == nil {
		blocks = []*store.Block{}
	}

	respondJSON(w, http.StatusOK, BlocksResponse{
		Blocks: blocks,
		Pagination: PaginationResult{
			Total:   total,
			First:   first,
			Skip:    skip,
			HasMore: skip+len(blocks) < total,
		},
	})
}

// GetBlock returns one block with its members ordered by seat position.
// @Summary Get block detail
// @Description Get one block and its members ordered by position
// @Tags Blocks
// @Produce json
// @Param address path string true "Block contract address"
// @Success 200 {object} BlockDetailResponse "Block with members"
// @Failure 400 {object} ErrorResponse "Invalid address"
// @Failure 404 {object} ErrorResponse "Block not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /blocks/{address} [get]
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	id, err := parseAddressParam(r, "address")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	block, err := h.store.GetBlock(r.Context(), id)
	if err != nil {
		h.log.Errorf("Failed to query block %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to query block")
		return
	}
	if block == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("block %s not found", id))
		return
	}

	members, err := h.store.MembersByBlock(r.Context(), id)
	if err != nil {
		h.log.Errorf("Failed to query members of %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to query block members")
		return
	}
	if members == nil {
		members = []*store.BlockMember{}
	}

	respondJSON(w, http.StatusOK, BlockDetailResponse{
		Block:   block,
		Members: members,
	})
}

// GetUser returns one user.
// @Summary Get user
// @Description Get one registered user by wallet address
// @Tags Users
// @Produce json
// @Param address path string true "Wallet address"
// @Success 200 {object} store.User "User"
// @Failure 400 {object} ErrorResponse "Invalid address"
// @Failure 404 {object} ErrorResponse "User not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /users/{address} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseAddressParam(r, "address")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		h.log.Errorf("Failed to query user %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to query user")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("user %s not found", id))
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// GetUserTransactions returns a user's transactions, newest first.
// @Summary List user transactions
// @Description List a user's transactions newest first with pagination
// @Tags Users
// @Produce json
// @Param address path string true "Wallet address"
// @Param first query int false "Maximum number of transactions to return" default(100)
// @Param skip query int false "Number of transactions to skip" default(0)
// @Success 200 {object} TransactionsResponse "List of transactions"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /users/{address}/transactions [get]
func (h *Handler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseAddressParam(r, "address")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	first, skip, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txns, err := h.store.TransactionsByUser(r.Context(), id, first, skip)
	if err != nil {
		h.log.Errorf("Failed to query transactions of %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to query transactions")
		return
	}

	total, err := h.store.CountTransactionsByUser(r.Context(), id)
	if err != nil {
		h.log.Errorf("Failed to count transactions of %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to query transactions")
		return
	}

	if txns == nil {
		txns = []*store.Transaction{}
	}

	respondJSON(w, http.StatusOK, TransactionsResponse{
		Transactions: txns,
		Pagination: PaginationResult{
			Total:   total,
			First:   first,
			Skip:    skip,
			HasMore: skip+len(txns) < total,
		},
	})
}

// GetRanking returns the live trend-annotated ranking of one level.
// @Summary Get level ranking
// @Description Get the live ranking of a level with per-block trend against yesterday's snapshot
// @Tags Ranking
// @Produce json
// @Param level path int true "Level id"
// @Success 200 {object} RankingResponse "Ranked blocks with trends"
// @Failure 400 {object} ErrorResponse "Invalid level"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /ranking/{level} [get]
func (h *Handler) GetRanking(w http.ResponseWriter, r *http.Request) {
	levelStr := r.PathValue("level")
	level, err := strconv.Atoi(levelStr)
	if err != nil || level < 0 {
		respondError(w, http.StatusBadRequest, "invalid level: must be a non-negative integer")
		return
	}

	now := uint64(h.now().Unix())

	entries, err := h.engine.Rank(r.Context(), level, now)
	if err != nil {
		h.log.Errorf("Failed to rank level %d: %v", level, err)
		respondError(w, http.StatusInternalServerError, "failed to compute ranking")
		return
	}
	if entries == nil {
		entries = []*ranking.RankedBlock{}
	}

	respondJSON(w, http.StatusOK, RankingResponse{
		LevelID: level,
		Day:     ranking.DayOf(now),
		Entries: entries,
	})
}

// Health reports indexer liveness and lag.
// @Summary Health check
// @Description Report the last indexed block, chain head and indexing lag
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Indexer health"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC(),
	}

	state, err := h.store.GetSyncState(r.Context())
	if err != nil {
		h.log.Errorf("Failed to read sync state: %v", err)
		response.Status = "degraded"
	} else if state != nil {
		response.LastIndexedBlock = state.LastIndexedBlock
	}

	if h.rpc != nil {
		head, err := h.rpc.BlockNumber(r.Context())
		if err != nil {
			h.log.Warnf("Failed to get chain head for health check: %v", err)
			response.Status = "degraded"
		} else {
			response.ChainHead = head
			if head > response.LastIndexedBlock {
				response.IndexingLag = head - response.LastIndexedBlock
			}
		}
	}

	if h.sources != nil {
		response.WatchedSources = h.sources.Count()
	}

	respondJSON(w, http.StatusOK, response)
}

// parseBlockFilter builds the store filter from query parameters.
func parseBlockFilter(r *http.Request) (store.BlockFilter, error) {
	var filter store.BlockFilter

	if levelStr := r.URL.Query().Get("level"); levelStr != "" {
		level, err := strconv.Atoi(levelStr)
		if err != nil || level < 0 {
			return filter, fmt.Errorf("invalid level: must be a non-negative integer")
		}
		filter.LevelID = &level
	}

	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		var status int
		switch strings.ToLower(statusStr) {
		case "active":
			status = store.StatusActive
		case "completed":
			status = store.StatusCompleted
		default:
			return filter, fmt.Errorf("invalid status: must be 'active' or 'completed'")
		}
		filter.Status = &status
	}

	if owner := r.URL.Query().Get("owner"); owner != "" {
		if !ethcommon.IsHexAddress(owner) {
			return filter, fmt.Errorf("invalid owner: not a hex address")
		}
		filter.Owner = &owner
	}

	return filter, nil
}

// parseOrdering reads order_by and order_direction query parameters.
func parseOrdering(r *http.Request) (string, bool, error) {
	orderBy := strings.ToLower(r.URL.Query().Get("order_by"))
	if orderBy == "" {
		orderBy = "created_at"
	}

	desc := false
	if dir := strings.ToLower(r.URL.Query().Get("order_direction")); dir != "" {
		switch dir {
		case "asc":
		case "desc":
			desc = true
		default:
			return "", false, fmt.Errorf("invalid order_direction: must be 'asc' or 'desc'")
		}
	}

	return orderBy, desc, nil
}

// parsePagination reads first and skip query parameters.
func parsePagination(r *http.Request) (int, int, error) {
	first := 100
	skip := 0

	if firstStr := r.URL.Query().Get("first"); firstStr != "" {
		parsed, err := strconv.Atoi(firstStr)
		if err != nil || parsed < 1 || parsed > 1000 {
			return 0, 0, fmt.Errorf("invalid first: must be between 1 and 1000")
		}
		first = parsed
	}

	if skipStr := r.URL.Query().Get("skip"); skipStr != "" {
		parsed, err := strconv.Atoi(skipStr)
		if err != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("invalid skip: must be non-negative")
		}
		skip = parsed
	}

	return first, skip, nil
}

// parseAddressParam reads and canonicalizes a path address parameter.
func parseAddressParam(r *http.Request, name string) (string, error) {
	value := r.PathValue(name)
	if value == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	if !ethcommon.IsHexAddress(value) {
		return "", fmt.Errorf("invalid %s: not a hex address", name)
	}

	return store.AddressKey(ethcommon.HexToAddress(value)), nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode first so an encoding failure can still change the status code
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	if _, err := w.Write(encoded); err != nil {
		// Headers already sent, nothing left to do
		return
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
