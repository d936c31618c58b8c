package websocket

import "errors"

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrHubStopped      = errors.New("feed hub stopped")
	ErrHubBusy         = errors.New("feed hub broadcast queue is full")
)
