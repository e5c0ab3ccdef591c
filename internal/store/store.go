package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/metrics"
)

// Store is the SQLite-backed entity store. All writes are idempotent: entity
// ids are derived from event content, so replaying a log range converges on
// the same rows instead of duplicating them.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore creates a new SQLite-backed entity store.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log,
	}
}

// DB exposes the underlying handle for transaction-scoped work.
func (s *Store) DB() *sql.DB {
	return s.db
}

// GetUser returns the user with the given id, or nil when none exists.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	user := new(User)
	err := meddler.QueryRow(s.db, user, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorInc("user", "get")
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}

	return user, nil
}

// PutUser inserts or fully replaces the user row.
func (s *Store) PutUser(ctx context.Context, user *User) error {
	const query = `
		INSERT INTO users (id, level, referral_code, referrer, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			level = excluded.level,
			referral_code = excluded.referral_code,
			referrer = excluded.referrer,
			registered_at = excluded.registered_at
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Level, user.ReferralCode, addrValue(user.Referrer), user.RegisteredAt)
	if err != nil {
		metrics.DBErrorInc("user", "put")
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}

	return nil
}

// GetBlock returns the block with the given id, or nil when none exists.
func (s *Store) GetBlock(ctx context.Context, id string) (*Block, error) {
	block := new(Block)
	err := meddler.QueryRow(s.db, block, `SELECT * FROM blocks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorInc("block", "get")
		return nil, fmt.Errorf("failed to query block %s: %w", id, err)
	}

	return block, nil
}

// PutBlock inserts or fully replaces the block row.
func (s *Store) PutBlock(ctx context.Context, block *Block) error {
	const query = `
		INSERT INTO blocks (id, owner, level_id, status, invited_count, position, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			level_id = excluded.level_id,
			status = excluded.status,
			invited_count = excluded.invited_count,
			position = excluded.position,
			created_at = excluded.created_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		block.ID, block.Owner, block.LevelID, block.Status,
		block.InvitedCount, block.Position, block.CreatedAt, block.CompletedAt)
	if err != nil {
		metrics.DBErrorInc("block", "put")
		return fmt.Errorf("failed to upsert block %s: %w", block.ID, err)
	}

	return nil
}

// BlockFilter narrows QueryBlocks results. Nil fields match everything.
type BlockFilter struct {
	Owner   *string
	LevelID *int
	Status  *int
}

// orderableBlockColumns is the whitelist of sortable block columns. Sorting
// goes through this table so caller input never reaches the SQL text.
var orderableBlockColumns = map[string]bool{
	"created_at":    true,
	"completed_at":  true,
	"invited_count": true,
	"position":      true,
	"level_id":      true,
}

// QueryBlocks returns blocks matching the filter, ordered and paginated.
// An unknown orderBy column falls back to created_at.
func (s *Store) QueryBlocks(ctx context.Context, filter BlockFilter, orderBy string, desc bool, first, skip int) ([]*Block, error) {
	where, args := blockFilterClause(filter)

	if !orderableBlockColumns[orderBy] {
		orderBy = "created_at"
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}

	// SQLite treats a negative LIMIT as unbounded.
	if first <= 0 {
		first = -1
	}
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT * FROM blocks%s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`,
		where, orderBy, direction)
	args = append(args, first, skip)

	var blocks []*Block
	if err := meddler.QueryAll(s.db, &blocks, query, args...); err != nil {
		metrics.DBErrorInc("block", "query")
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}

	return blocks, nil
}

// CountBlocks returns the number of blocks matching the filter.
func (s *Store) CountBlocks(ctx context.Context, filter BlockFilter) (int, error) {
	where, args := blockFilterClause(filter)

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`+where, args...).Scan(&count)
	if err != nil {
		metrics.DBErrorInc("block", "count")
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}

	return count, nil
}

// MaxBlockPosition returns the highest creation-order number assigned within
// a level, or zero when the level has no blocks yet.
func (s *Store) MaxBlockPosition(ctx context.Context, levelID int) (uint64, error) {
	var max uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM blocks WHERE level_id = ?`, levelID).Scan(&max)
	if err != nil {
		metrics.DBErrorInc("block", "max_position")
		return 0, fmt.Errorf("failed to query max block position for level %d: %w", levelID, err)
	}

	return max, nil
}

// BlockIDs returns the ids of every known block, in creation order.
// Used to rebuild the watched source set on startup.
func (s *Store) BlockIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM blocks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		metrics.DBErrorInc("block", "list_ids")
		return nil, fmt.Errorf("failed to query block ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan block id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate block ids: %w", err)
	}

	return ids, nil
}

// GetBlockMember returns the membership row with the given id, or nil.
func (s *Store) GetBlockMember(ctx context.Context, id string) (*BlockMember, error) {
	member := new(BlockMember)
	err := meddler.QueryRow(s.db, member, `SELECT * FROM block_members WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorInc("block_member", "get")
		return nil, fmt.Errorf("failed to query block member %s: %w", id, err)
	}

	return member, nil
}

// PutBlockMember records a membership. A member holds at most one seat per
// block, so a second join of the same pair is dropped rather than updated.
func (s *Store) PutBlockMember(ctx context.Context, member *BlockMember) error {
	const query = `
		INSERT INTO block_members (id, block_id, member_id, position, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		member.ID, member.Block, member.Member, member.Position, member.JoinedAt)
	if err != nil {
		metrics.DBErrorInc("block_member", "put")
		return fmt.Errorf("failed to insert block member %s: %w", member.ID, err)
	}

	return nil
}

// MembersByBlock returns a block's members ordered by seat position.
func (s *Store) MembersByBlock(ctx context.Context, blockID string) ([]*BlockMember, error) {
	var members []*BlockMember
	err := meddler.QueryAll(s.db, &members,
		`SELECT * FROM block_members WHERE block_id = ? ORDER BY position ASC, id ASC`, blockID)
	if err != nil {
		metrics.DBErrorInc("block_member", "query")
		return nil, fmt.Errorf("failed to query members of block %s: %w", blockID, err)
	}

	return members, nil
}

// MemberCount returns the number of seats taken in a block.
func (s *Store) MemberCount(ctx context.Context, blockID string) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM block_members WHERE block_id = ?`, blockID).Scan(&count)
	if err != nil {
		metrics.DBErrorInc("block_member", "count")
		return 0, fmt.Errorf("failed to count members of block %s: %w", blockID, err)
	}

	return count, nil
}

// GetTransaction returns the transaction with the given id, or nil.
func (s *Store) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	txn := new(Transaction)
	err := meddler.QueryRow(s.db, txn, `SELECT * FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorInc("transaction", "get")
		return nil, fmt.Errorf("failed to query transaction %s: %w", id, err)
	}

	return txn, nil
}

// PutTransaction records a transaction. The id is the chain tx hash; the
// first write wins and replays are dropped.
func (s *Store) PutTransaction(ctx context.Context, txn *Transaction) error {
	const query = `
		INSERT INTO transactions (id, user_id, tx_type, amount, block_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		txn.ID, txn.User, txn.Type, txn.Amount, txn.Block, txn.Timestamp)
	if err != nil {
		metrics.DBErrorInc("transaction", "put")
		return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}

	return nil
}

// TransactionsByUser returns a user's transactions, newest first.
func (s *Store) TransactionsByUser(ctx context.Context, userID string, first, skip int) ([]*Transaction, error) {
	if first <= 0 {
		first = 100
	}
	if skip < 0 {
		skip = 0
	}

	var txns []*Transaction
	err := meddler.QueryAll(s.db, &txns,
		`SELECT * FROM transactions WHERE user_id = ? ORDER BY timestamp DESC, id ASC LIMIT ? OFFSET ?`,
		userID, first, skip)
	if err != nil {
		metrics.DBErrorInc("transaction", "query")
		return nil, fmt.Errorf("failed to query transactions of user %s: %w", userID, err)
	}

	return txns, nil
}

// CountTransactionsByUser returns the number of transactions of a user.
func (s *Store) CountTransactionsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		metrics.DBErrorInc("transaction", "count")
		return 0, fmt.Errorf("failed to count transactions of user %s: %w", userID, err)
	}

	return count, nil
}

// GetSnapshot returns the ranking snapshot with the given id, or nil.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*RankingSnapshot, error) {
	snap := new(RankingSnapshot)
	err := meddler.QueryRow(s.db, snap, `SELECT * FROM ranking_snapshots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorInc("snapshot", "get")
		return nil, fmt.Errorf("failed to query snapshot %s: %w", id, err)
	}

	return snap, nil
}

// PutSnapshot inserts or replaces a block's snapshot for one day.
// The last write of the day wins.
func (s *Store) PutSnapshot(ctx context.Context, snap *RankingSnapshot) error {
	const query = `
		INSERT INTO ranking_snapshots (id, block_id, level_id, invited_count, member_count, day, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			invited_count = excluded.invited_count,
			member_count = excluded.member_count,
			timestamp = excluded.timestamp
	`

	_, err := s.db.ExecContext(ctx, query,
		snap.ID, snap.Block, snap.LevelID, snap.InvitedCount, snap.MemberCount, snap.Day, snap.Timestamp)
	if err != nil {
		metrics.DBErrorInc("snapshot", "put")
		return fmt.Errorf("failed to upsert snapshot %s: %w", snap.ID, err)
	}

	return nil
}

// SnapshotsByLevelDay returns the snapshots of one level for one day, ordered
// for ranking: invite count descending, block id ascending as the tiebreak so
// ranks are deterministic.
func (s *Store) SnapshotsByLevelDay(ctx context.Context, levelID int, day uint64) ([]*RankingSnapshot, error) {
	var snaps []*RankingSnapshot
	err := meddler.QueryAll(s.db, &snaps,
		`SELECT * FROM ranking_snapshots WHERE level_id = ? AND day = ? ORDER BY invited_count DESC, block_id ASC`,
		levelID, day)
	if err != nil {
		metrics.DBErrorInc("snapshot", "query")
		return nil, fmt.Errorf("failed to query snapshots for level %d day %d: %w", levelID, day, err)
	}

	return snaps, nil
}

// GetDailyPosition returns the stored rank row with the given id, or nil.
func (s *Store) GetDailyPosition(ctx context.Context, id string) (*DailyRankingPosition, error) {
	pos := new(DailyRankingPosition)
	err := meddler.QueryRow(s.db, pos, `SELECT * FROM daily_positions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorInc("daily_position", "get")
		return nil, fmt.Errorf("failed to query daily position %s: %w", id, err)
	}

	return pos, nil
}

// PutDailyPositions replaces the rank rows for the given blocks in one
// transaction, so readers never observe a half-written ranking.
func (s *Store) PutDailyPositions(ctx context.Context, positions []*DailyRankingPosition) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	const query = `
		INSERT INTO daily_positions (id, block_id, level_id, day, position, invited_count, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			invited_count = excluded.invited_count,
			timestamp = excluded.timestamp
	`

	for _, pos := range positions {
		_, err := tx.Exec(query,
			pos.ID, pos.Block, pos.LevelID, pos.Day, pos.Position, pos.InvitedCount, pos.Timestamp)
		if err != nil {
			metrics.DBErrorInc("daily_position", "put")
			return fmt.Errorf("failed to upsert daily position %s: %w", pos.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DailyPositionsByLevelDay returns the stored ranking of one level for one
// day, best rank first.
func (s *Store) DailyPositionsByLevelDay(ctx context.Context, levelID int, day uint64) ([]*DailyRankingPosition, error) {
	var positions []*DailyRankingPosition
	err := meddler.QueryAll(s.db, &positions,
		`SELECT * FROM daily_positions WHERE level_id = ? AND day = ? ORDER BY position ASC`,
		levelID, day)
	if err != nil {
		metrics.DBErrorInc("daily_position", "query")
		return nil, fmt.Errorf("failed to query daily positions for level %d day %d: %w", levelID, day, err)
	}

	return positions, nil
}

// GetSyncState returns the pipeline checkpoint, or nil before the first save.
func (s *Store) GetSyncState(ctx context.Context) (*SyncState, error) {
	state := new(SyncState)
	err := meddler.QueryRow(s.db, state, `SELECT * FROM sync_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorInc("sync_state", "get")
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}

	return state, nil
}

// SaveCheckpoint records the last fully indexed chain block.
func (s *Store) SaveCheckpoint(ctx context.Context, blockNumber uint64, blockHash common.Hash, updatedAt uint64) error {
	const query = `
		INSERT INTO sync_state (id, last_indexed_block, block_hash, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_indexed_block = excluded.last_indexed_block,
			block_hash = excluded.block_hash,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, blockNumber, blockHash.Hex(), updatedAt)
	if err != nil {
		metrics.DBErrorInc("sync_state", "put")
		return fmt.Errorf("failed to save checkpoint at block %d: %w", blockNumber, err)
	}

	return nil
}

// blockFilterClause builds the WHERE clause and args for a block filter.
func blockFilterClause(filter BlockFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Owner != nil {
		conditions = append(conditions, "owner = ?")
		args = append(args, strings.ToLower(*filter.Owner))
	}
	if filter.LevelID != nil {
		conditions = append(conditions, "level_id = ?")
		args = append(args, *filter.LevelID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}

	if len(conditions) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// addrValue converts an optional address to its stored form.
func addrValue(addr *common.Address) any {
	if addr == nil {
		return nil
	}
	return strings.ToLower(addr.Hex())
}
