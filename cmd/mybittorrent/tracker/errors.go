package tracker

import "errors"

var (
	ErrMalformedResponse = errors.New("malformed tracker response")
	ErrProtocol          = errors.New("tracker protocol violation")
	ErrTransport         = errors.New("tracker transport failure")
	ErrUnsupportedScheme = errors.New("unsupported tracker scheme")
	ErrScrapeUnsupported = errors.New("tracker does not support scrape")
)

// Error is a failure message sent by the tracker from announce or scrape.
type Error string

func (e Error) Error() string { return "tracker error: " + string(e) }
