package rpc

import (
	"strings"
)

// IsRateLimitError reports whether the error indicates the RPC endpoint is
// throttling us.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit")
}

// IsBenignFilterError reports whether the error is one of the known-benign
// eth_getLogs failures the poller can safely ignore: the node pruned or
// rejected the block range, or a previously installed filter expired.
func IsBenignFilterError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "invalid block range") ||
		strings.Contains(errStr, "block range is too wide") ||
		strings.Contains(errStr, "filter not found") ||
		IsRateLimitError(err)
}
