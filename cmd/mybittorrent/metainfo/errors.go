package metainfo

import "errors"

var (
	// ErrFormat is returned when a fixed-size identifier has the wrong shape.
	ErrFormat = errors.New("malformed identifier")

	// ErrSerialization is returned when the info dictionary cannot be bencoded.
	ErrSerialization = errors.New("bencode serialization failed")

	// ErrResolution is returned when a tracker host cannot be resolved.
	ErrResolution = errors.New("host resolution failed")

	ErrInvalidURL     = errors.New("invalid tracker url")
	ErrInvalidInfo    = errors.New("invalid info dictionary")
	ErrInvalidTorrent = errors.New("invalid torrent file")
)
