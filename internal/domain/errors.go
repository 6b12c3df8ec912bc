package domain

import "errors"

var (
	// ErrNotConnected is returned when an operation requires a live session
	ErrNotConnected = errors.New("not connected to Telegram")

	// ErrAuthenticationFailed is returned when authentication fails
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConnectionFailed is returned when connection to Telegram fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrGroupNotFound is returned when a group cannot be resolved
	ErrGroupNotFound = errors.New("group not found")

	// ErrUserNotFound is returned when a user cannot be resolved
	ErrUserNotFound = errors.New("user not found")

	// ErrGroupRestricted is returned for permission-denied or privacy-restricted
	// groups; the sync engine logs it and skips the group
	ErrGroupRestricted = errors.New("group access restricted")

	// ErrBadFilterPattern is returned for an invalid regex filter; it is a
	// fatal configuration error that short-circuits the whole pipeline
	ErrBadFilterPattern = errors.New("invalid filter pattern")

	// ErrUnknownSink is returned when a finder rule names a sink that is
	// not registered with the dispatcher
	ErrUnknownSink = errors.New("unknown sink")

	// ErrShardClosed is returned on access to a media shard after Close
	ErrShardClosed = errors.New("media shard closed")

	// ErrStateNotFound is returned when a state entry path has no value
	ErrStateNotFound = errors.New("state entry not found")

	// ErrFloodWait is returned when the platform demands a flood wait
	ErrFloodWait = errors.New("flood wait required")
)
