package broadcast

import "errors"

var (
	ErrClosed        = errors.New("broadcast: broadcaster is closed")
	ErrEmptyTopic    = errors.New("broadcast: empty topic")
	ErrPublishFailed = errors.New("broadcast: publish failed")
)
