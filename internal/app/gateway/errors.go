package gateway

import (
	"errors"
	"time"
)

var (
	errUnknownEvent  = errors.New("unknown event")
	errBadPayload    = errors.New("malformed payload")
	errAccessDenied  = errors.New("board access denied")
	errNotInRoom     = errors.New("join the board before editing it")
	errUnknownTarget = errors.New("card or column not found")
	errBadRank       = errors.New("no usable rank for this position")
)

func codeFor(err error) string {
	switch err {
	case errAccessDenied, errNotInRoom:
		return "forbidden"
	case errUnknownEvent, errBadPayload, errBadRank:
		return "invalid_input"
	case errUnknownTarget:
		return "not_found"
	default:
		return "internal"
	}
}

// timeNow is stubbed in tests.
var timeNow = time.Now
