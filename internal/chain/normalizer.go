package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnrecognizedEvent is returned when a log matches no known signature.
// Callers log and skip; unknown events must never stop the pipeline so the
// indexer stays forward compatible with newer contract versions.
var ErrUnrecognizedEvent = errors.New("unrecognized event")

const wordSize = 32 // size of one ABI-encoded word

// Event signatures of the registry and block contracts.
const (
	sigUserRegistered        = "UserRegistered(address,address,uint8)"
	sigMyBlockCreated        = "MyBlockCreated(address,uint8,address)"
	sigReferralCodeGenerated = "ReferralCodeGenerated(address,bytes32)"
	sigReferralChainCreated  = "ReferralChainCreated(address,address)"
	sigInviteCountUpdated    = "InviteCountUpdated(address,uint256)"
	sigBlockSettled          = "BlockSettled(address,bool)"
	sigMemberJoined          = "MemberJoined(address,uint256,uint256)"
	sigBlockCompleted        = "BlockCompleted()"
)

// Normalizer maps raw chain logs onto the closed set of typed domain events.
// It is pure: no store access, no side effects.
type Normalizer struct {
	decoders map[common.Hash]func(*types.Log, Meta) (Event, error)
}

// NewNormalizer creates a Normalizer with the topic table for all known events.
func NewNormalizer() *Normalizer {
	n := &Normalizer{}
	n.decoders = map[common.Hash]func(*types.Log, Meta) (Event, error){
		crypto.Keccak256Hash([]byte(sigUserRegistered)):        n.decodeUserRegistered,
		crypto.Keccak256Hash([]byte(sigMyBlockCreated)):        n.decodeMyBlockCreated,
		crypto.Keccak256Hash([]byte(sigReferralCodeGenerated)): n.decodeReferralCodeGenerated,
		crypto.Keccak256Hash([]byte(sigReferralChainCreated)):  n.decodeReferralChainCreated,
		crypto.Keccak256Hash([]byte(sigInviteCountUpdated)):    n.decodeInviteCountUpdated,
		crypto.Keccak256Hash([]byte(sigBlockSettled)):          n.decodeBlockSettled,
		crypto.Keccak256Hash([]byte(sigMemberJoined)):          n.decodeMemberJoined,
		crypto.Keccak256Hash([]byte(sigBlockCompleted)):        n.decodeBlockCompleted,
	}
	return n
}

// Normalize produces exactly one typed event from a raw log, or fails with
// ErrUnrecognizedEvent when the log matches no known signature.
// The block timestamp is supplied by the caller since logs do not carry it.
func (n *Normalizer) Normalize(log *types.Log, timestamp uint64) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: log without topics at block %d", ErrUnrecognizedEvent, log.BlockNumber)
	}

	decode, ok := n.decoders[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s from %s", ErrUnrecognizedEvent,
			log.Topics[0].Hex(), log.Address.Hex())
	}

	meta := Meta{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Emitter:     log.Address,
		Timestamp:   timestamp,
	}

	return decode(log, meta)
}

// UserRegistered(address indexed user, address indexed referrer, uint8 level)
func (n *Normalizer) decodeUserRegistered(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 3, wordSize); err != nil {
		return nil, fmt.Errorf("invalid UserRegistered event: %w", err)
	}

	return UserRegistered{
		Meta:     meta,
		User:     common.BytesToAddress(log.Topics[1].Bytes()),
		Referrer: common.BytesToAddress(log.Topics[2].Bytes()),
		Level:    uint8(wordToUint64(log.Data[:wordSize])),
	}, nil
}

// MyBlockCreated(address indexed center, uint8 level, address blockAddress)
func (n *Normalizer) decodeMyBlockCreated(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 2, 2*wordSize); err != nil {
		return nil, fmt.Errorf("invalid MyBlockCreated event: %w", err)
	}

	return MyBlockCreated{
		Meta:         meta,
		Center:       common.BytesToAddress(log.Topics[1].Bytes()),
		Level:        uint8(wordToUint64(log.Data[:wordSize])),
		BlockAddress: common.BytesToAddress(log.Data[wordSize : 2*wordSize]),
	}, nil
}

// ReferralCodeGenerated(address indexed wallet, bytes32 code)
func (n *Normalizer) decodeReferralCodeGenerated(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 2, wordSize); err != nil {
		return nil, fmt.Errorf("invalid ReferralCodeGenerated event: %w", err)
	}

	return ReferralCodeGenerated{
		Meta:   meta,
		Wallet: common.BytesToAddress(log.Topics[1].Bytes()),
		Code:   bytes.TrimRight(log.Data[:wordSize], "\x00"),
	}, nil
}

// ReferralChainCreated(address indexed user, address indexed referrer)
func (n *Normalizer) decodeReferralChainCreated(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 3, 0); err != nil {
		return nil, fmt.Errorf("invalid ReferralChainCreated event: %w", err)
	}

	return ReferralChainCreated{
		Meta:     meta,
		User:     common.BytesToAddress(log.Topics[1].Bytes()),
		Referrer: common.BytesToAddress(log.Topics[2].Bytes()),
	}, nil
}

// InviteCountUpdated(address indexed blockAddress, uint256 newCount)
func (n *Normalizer) decodeInviteCountUpdated(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 2, wordSize); err != nil {
		return nil, fmt.Errorf("invalid InviteCountUpdated event: %w", err)
	}

	return InviteCountUpdated{
		Meta:         meta,
		BlockAddress: common.BytesToAddress(log.Topics[1].Bytes()),
		NewCount:     wordToUint64(log.Data[:wordSize]),
	}, nil
}

// BlockSettled(address indexed blockAddress, bool advanced)
func (n *Normalizer) decodeBlockSettled(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 2, wordSize); err != nil {
		return nil, fmt.Errorf("invalid BlockSettled event: %w", err)
	}

	return BlockSettled{
		Meta:         meta,
		BlockAddress: common.BytesToAddress(log.Topics[1].Bytes()),
		Advanced:     wordToUint64(log.Data[:wordSize]) != 0,
	}, nil
}

// MemberJoined(address indexed member, uint256 position, uint256 amount)
// Emitted by the block contract itself; the emitter address scopes the event.
func (n *Normalizer) decodeMemberJoined(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 2, 2*wordSize); err != nil {
		return nil, fmt.Errorf("invalid MemberJoined event: %w", err)
	}

	return MemberJoined{
		Meta:     meta,
		Member:   common.BytesToAddress(log.Topics[1].Bytes()),
		Position: wordToUint64(log.Data[:wordSize]),
		Amount:   wordToUint64(log.Data[wordSize : 2*wordSize]),
	}, nil
}

// BlockCompleted()
func (n *Normalizer) decodeBlockCompleted(log *types.Log, meta Meta) (Event, error) {
	if err := checkShape(log, 1, 0); err != nil {
		return nil, fmt.Errorf("invalid BlockCompleted event: %w", err)
	}

	return BlockCompleted{Meta: meta}, nil
}

// checkShape validates the topic count and minimum data size of a log.
func checkShape(log *types.Log, topics, dataSize int) error {
	if len(log.Topics) != topics {
		return fmt.Errorf("expected %d topics, got %d", topics, len(log.Topics))
	}
	if len(log.Data) < dataSize {
		return fmt.Errorf("expected at least %d bytes of data, got %d", dataSize, len(log.Data))
	}
	return nil
}

// wordToUint64 interprets one ABI word as a uint64, saturating on overflow.
// Counters and amounts in this system fit comfortably in 64 bits; a larger
// value indicates a malformed log rather than a legitimate quantity.
func wordToUint64(word []byte) uint64 {
	v := new(big.Int).SetBytes(word)
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}
