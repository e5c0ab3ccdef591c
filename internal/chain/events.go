package chain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Meta carries the chain coordinates every domain event shares.
type Meta struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Emitter     common.Address
	Timestamp   uint64
}

// Event is a typed domain event produced by the normalizer from a raw log.
type Event interface {
	// Name returns the canonical event name.
	Name() string

	// EventMeta returns the chain coordinates of the underlying log.
	EventMeta() Meta
}

// UserRegistered is emitted by the registry when a wallet registers.
type UserRegistered struct {
	Meta
	User     common.Address
	Referrer common.Address // zero address when the user registered without one
	Level    uint8
}

func (e UserRegistered) Name() string    { return "UserRegistered" }
func (e UserRegistered) EventMeta() Meta { return e.Meta }

// MyBlockCreated is emitted by the registry when the factory instantiates a
// new savings-circle block contract for a user.
type MyBlockCreated struct {
	Meta
	Center       common.Address
	Level        uint8
	BlockAddress common.Address
}

func (e MyBlockCreated) Name() string    { return "MyBlockCreated" }
func (e MyBlockCreated) EventMeta() Meta { return e.Meta }

// ReferralCodeGenerated is emitted when a registered wallet receives its code.
type ReferralCodeGenerated struct {
	Meta
	Wallet common.Address
	Code   []byte
}

func (e ReferralCodeGenerated) Name() string    { return "ReferralCodeGenerated" }
func (e ReferralCodeGenerated) EventMeta() Meta { return e.Meta }

// ReferralChainCreated links a user to their referrer after both registered.
type ReferralChainCreated struct {
	Meta
	User     common.Address
	Referrer common.Address
}

func (e ReferralChainCreated) Name() string    { return "ReferralChainCreated" }
func (e ReferralChainCreated) EventMeta() Meta { return e.Meta }

// InviteCountUpdated reports the new invited-participant count of a block.
type InviteCountUpdated struct {
	Meta
	BlockAddress common.Address
	NewCount     uint64
}

func (e InviteCountUpdated) Name() string    { return "InviteCountUpdated" }
func (e InviteCountUpdated) EventMeta() Meta { return e.Meta }

// BlockSettled is emitted by the registry when a block pays out.
// Advanced indicates the owner moved on to the next level, which also
// completes the block.
type BlockSettled struct {
	Meta
	BlockAddress common.Address
	Advanced     bool
}

func (e BlockSettled) Name() string    { return "BlockSettled" }
func (e BlockSettled) EventMeta() Meta { return e.Meta }

// MemberJoined is emitted by an individual block contract when a member
// takes a position in it. The emitting contract identifies the block.
type MemberJoined struct {
	Meta
	Member   common.Address
	Position uint64
	Amount   uint64
}

func (e MemberJoined) Name() string    { return "MemberJoined" }
func (e MemberJoined) EventMeta() Meta { return e.Meta }

// BlockCompleted is emitted by an individual block contract when it fills.
type BlockCompleted struct {
	Meta
}

func (e BlockCompleted) Name() string    { return "BlockCompleted" }
func (e BlockCompleted) EventMeta() Meta { return e.Meta }
