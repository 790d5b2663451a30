package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"traitforge/internal/pinning"
	"traitforge/pkg/models"
)

// solidPNG returns a w x h PNG with rect filled in c and the rest transparent.
func solidPNG(t *testing.T, w, h int, rect image.Rectangle, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// assetHost serves /{id}.png from a fixed set and counts every request.
type assetHost struct {
	*httptest.Server
	hits   atomic.Int64
	assets map[string][]byte
	delay  map[string]time.Duration
}

func newAssetHost(t *testing.T, assets map[string][]byte) *assetHost {
	t.Helper()
	h := &assetHost{assets: assets, delay: map[string]time.Duration{}}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/traits/"), ".png")
		if d := h.delay[id]; d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		b, ok := h.assets[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(b)
	}))
	t.Cleanup(h.Server.Close)
	return h
}

func (h *assetHost) baseURL() string { return h.URL + "/traits" }

// fakePinner records what it was asked to pin.
type fakePinner struct {
	mu       sync.Mutex
	calls    int
	payloads [][]byte
	labels   []string
	paths    []string
	err      error
	delay    time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (p *fakePinner) PinFile(ctx context.Context, r io.Reader, name string) (*pinning.PinResult, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		m := p.maxInflight.Load()
		if n <= m || p.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.payloads = append(p.payloads, b)
	p.labels = append(p.labels, name)
	if f, ok := r.(*os.File); ok {
		p.paths = append(p.paths, f.Name())
	}
	if p.err != nil {
		return nil, p.err
	}
	return &pinning.PinResult{IpfsHash: "Qm" + string(rune('A'+p.calls-1)), PinSize: int64(len(b))}, nil
}

func (p *fakePinner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// memStore is an in-memory Store that counts writes.
type memStore struct {
	mu        sync.Mutex
	records   map[string]*models.Token
	existsErr error
	updateErr error
	updates   int
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{records: map[string]*models.Token{}}
	for _, id := range ids {
		s.records[id] = &models.Token{ID: id, TokenType: models.TokenTypeMaster, TraitIDs: []models.TraitID{}}
	}
	return s
}

func (s *memStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.records[id]
	return ok, nil
}

func (s *memStore) UpdateComposition(ctx context.Context, id string, traitIDs []models.TraitID, image string) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, errors.New("missing")
	}
	rec.TraitIDs = append([]models.TraitID(nil), traitIDs...)
	rec.Image = image
	cp := *rec
	return &cp, nil
}

func (s *memStore) get(id string) models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *memStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

const testGateway = "https://gateway.test/ipfs/"

type fixture struct {
	pipeline *Pipeline
	host     *assetHost
	pinner   *fakePinner
	store    *memStore
	tempDir  string
}

func newFixture(t *testing.T, assets map[string][]byte, masters ...string) *fixture {
	t.Helper()
	host := newAssetHost(t, assets)
	pinner := &fakePinner{}
	store := newMemStore(masters...)
	tempDir := t.TempDir()

	p := New(
		NewFetcher(host.baseURL(), 2*time.Second, 4),
		NewCompositor(200, 200),
		NewPublisher(pinner, 2*time.Second),
		NewUpdater(store, testGateway, nil),
		Options{TempDir: tempDir},
	)
	return &fixture{pipeline: p, host: host, pinner: pinner, store: store, tempDir: tempDir}
}

func (f *fixture) artifactsLeft(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
