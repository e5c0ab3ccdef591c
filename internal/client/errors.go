package client

import "errors"

// ErrRateLimited marks a query rejected by the endpoint's throttle or by the
// local cooldown guard. It is a distinct type so the cooldown logic can react
// to it specifically instead of treating it as a generic network failure.
var ErrRateLimited = errors.New("rate limited")
