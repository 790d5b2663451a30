package pinning

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// cidPrefix marks identifiers minted by LocalStore so they are never
// mistaken for real IPFS CIDs.
const cidPrefix = "b3"

// LocalStore pins content into a directory, naming each object by the
// blake3 digest of its bytes.
type LocalStore struct {
	Dir string

	mu sync.Mutex
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local pin dir: %w", err)
	}
	return &LocalStore{Dir: dir}, nil
}

func (s *LocalStore) PinFile(ctx context.Context, r io.Reader, name string) (*PinResult, error) {
	tmp, err := os.CreateTemp(s.Dir, ".pin-*")
	if err != nil {
		return nil, fmt.Errorf("local pin: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("local pin: write: %w", err)
	}

	cid := cidPrefix + hex.EncodeToString(h.Sum(nil))
	dst := filepath.Join(s.Dir, cid)

	s.mu.Lock()
	defer s.mu.Unlock()

	res := &PinResult{IpfsHash: cid, PinSize: n, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if _, err := os.Stat(dst); err == nil {
		res.IsDuplicate = true
	} else if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("local pin: store %s: %w", cid, err)
	}
	if name != "" {
		// label is provenance only; losing it is not fatal
		_ = os.WriteFile(dst+".name", []byte(name), 0o644)
	}
	return res, nil
}

// Open returns the pinned object for cid.
func (s *LocalStore) Open(cid string) (*os.File, error) {
	if !strings.HasPrefix(cid, cidPrefix) || strings.ContainsAny(cid, `/\.`) {
		return nil, fmt.Errorf("local pin: invalid cid %q: %w", cid, os.ErrNotExist)
	}
	f, err := os.Open(filepath.Join(s.Dir, cid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("local pin: %s: %w", cid, os.ErrNotExist)
		}
		return nil, err
	}
	return f, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
