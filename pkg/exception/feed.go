package exception

import "github.com/yanun0323/errors"

var (
	ErrFeedEmpty     = errors.New("feed: no valid ticks")
	ErrFeedMalformed = errors.New("feed: malformed record")
)
