package store

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Block lifecycle states. A block never leaves StatusCompleted.
const (
	StatusActive    = 0
	StatusCompleted = 1
)

// Transaction types recorded against users.
const (
	TxTypeRegistration = "registration"
	TxTypeJoin         = "join"
	TxTypeAdvance      = "advance"
	TxTypeCashout      = "cashout"
	TxTypeWithdraw     = "withdraw"
)

// AddressKey canonicalizes an address for use as an entity id.
// Addresses are compared case-insensitively on chain but stored lowercase.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// MemberKey builds the composite BlockMember id.
func MemberKey(blockID, memberID string) string {
	return blockID + "-" + memberID
}

// User is a registered (or lazily discovered) wallet.
// Created by whichever handler first observes the address; never deleted.
type User struct {
	ID           string          `meddler:"id" json:"id"`
	Level        int             `meddler:"level" json:"level"`
	ReferralCode string          `meddler:"referral_code" json:"referralCode"`
	Referrer     *common.Address `meddler:"referrer,address" json:"referrer,omitempty"`
	RegisteredAt uint64          `meddler:"registered_at" json:"registeredAt"`
}

// Block is a single savings-circle contract instance.
type Block struct {
	ID           string `meddler:"id" json:"id"`
	Owner        string `meddler:"owner" json:"owner"`
	LevelID      int    `meddler:"level_id" json:"levelId"`
	Status       int    `meddler:"status" json:"status"`
	InvitedCount uint64 `meddler:"invited_count" json:"invitedCount"`
	// Position is the 1-based creation-order number within the level.
	// Assigned once at creation and never recomputed.
	Position    uint64 `meddler:"position" json:"position"`
	CreatedAt   uint64 `meddler:"created_at" json:"createdAt"`
	CompletedAt uint64 `meddler:"completed_at" json:"completedAt,omitempty"`
}

// BlockMember records one member's seat in a block. Immutable once created.
type BlockMember struct {
	ID       string `meddler:"id" json:"id"`
	Block    string `meddler:"block_id" json:"block"`
	Member   string `meddler:"member_id" json:"member"`
	Position uint64 `meddler:"position" json:"position"`
	JoinedAt uint64 `meddler:"joined_at" json:"joinedAt"`
}

// Transaction is an on-chain payment attributed to a user.
// The id is the chain transaction hash; immutable once created.
type Transaction struct {
	ID        string `meddler:"id" json:"id"`
	User      string `meddler:"user_id" json:"user"`
	Type      string `meddler:"tx_type" json:"type"`
	Amount    uint64 `meddler:"amount" json:"amount"`
	Block     string `meddler:"block_id" json:"block,omitempty"`
	Timestamp uint64 `meddler:"timestamp" json:"timestamp"`
}

// RankingSnapshot captures a block's invite standing for one UTC day.
// Repeated updates within the same day overwrite the row (last write wins):
// a snapshot represents the latest-known state of that day, not a history.
type RankingSnapshot struct {
	ID           string `meddler:"id" json:"id"`
	Block        string `meddler:"block_id" json:"block"`
	LevelID      int    `meddler:"level_id" json:"levelId"`
	InvitedCount uint64 `meddler:"invited_count" json:"invitedCount"`
	MemberCount  uint64 `meddler:"member_count" json:"memberCount"`
	Day          uint64 `meddler:"day" json:"day"`
	Timestamp    uint64 `meddler:"timestamp" json:"timestamp"`
}

// DailyRankingPosition is a block's 1-based rank within its level for one day.
type DailyRankingPosition struct {
	ID           string `meddler:"id" json:"id"`
	Block        string `meddler:"block_id" json:"block"`
	LevelID      int    `meddler:"level_id" json:"levelId"`
	Day          uint64 `meddler:"day" json:"day"`
	Position     int    `meddler:"position" json:"position"`
	InvitedCount uint64 `meddler:"invited_count" json:"invitedCount"`
	Timestamp    uint64 `meddler:"timestamp" json:"timestamp"`
}

// SyncState is the pipeline checkpoint: the last chain block whose logs have
// been fully folded into the store. Exposed through the health endpoint so
// consumers can measure indexing lag.
type SyncState struct {
	ID               int64       `meddler:"id"`
	LastIndexedBlock uint64      `meddler:"last_indexed_block"`
	BlockHash        common.Hash `meddler:"block_hash,hash"`
	UpdatedAt        uint64      `meddler:"updated_at"`
}
