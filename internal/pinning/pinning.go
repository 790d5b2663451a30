// Package pinning publishes files to content-addressed storage.
//
// Pinata talks to the hosted pinning API; LocalStore is a filesystem
// stand-in used for development and tests.
package pinning

import (
	"context"
	"io"
)

// PinResult mirrors the pinFileToIPFS response body.
type PinResult struct {
	IpfsHash    string `json:"IpfsHash"`
	PinSize     int64  `json:"PinSize"`
	Timestamp   string `json:"Timestamp"`
	IsDuplicate bool   `json:"isDuplicate,omitempty"`
}

// Pinner uploads a stream and returns the content identifier it was stored under.
type Pinner interface {
	PinFile(ctx context.Context, r io.Reader, name string) (*PinResult, error)
}
