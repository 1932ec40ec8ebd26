package domain

import "errors"

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrBanNotFound    = errors.New("ban not found")
	ErrMuteNotFound   = errors.New("mute not found")
	ErrConflict       = errors.New("record already exists")

	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// ErrNoPeers is returned by a broadcast that found nobody connected.
var ErrNoPeers = errors.New("no connected peers")
