package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"traitforge/pkg/models"
)

// maxAssetBytes caps a single trait download.
const maxAssetBytes = 32 << 20

// Layer is one downloaded trait asset, still encoded.
type Layer struct {
	TraitID models.TraitID
	Data    []byte
}

// Fetcher downloads trait assets from {BaseURL}/{traitId}.png.
type Fetcher struct {
	BaseURL string
	Client  *http.Client
	// Timeout bounds each download on its own.
	Timeout time.Duration
	// Parallel is the maximum number of downloads in flight.
	Parallel int
}

func NewFetcher(baseURL string, timeout time.Duration, parallel int) *Fetcher {
	return &Fetcher{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   &http.Client{},
		Timeout:  timeout,
		Parallel: parallel,
	}
}

func (f *Fetcher) URL(id models.TraitID) string {
	return f.BaseURL + "/" + url.PathEscape(string(id)) + ".png"
}

// Fetch downloads every trait and returns the layers in input order.
// The first failure cancels the remaining downloads and is returned as an
// *AssetFetchError.
func (f *Fetcher) Fetch(ctx context.Context, ids []models.TraitID) ([]Layer, error) {
	if len(ids) == 0 {
		return nil, errors.New("fetch: no trait ids")
	}

	layers := make([]Layer, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if f.Parallel > 0 {
		g.SetLimit(f.Parallel)
	}

	for i, id := range ids {
		g.Go(func() error {
			u := f.URL(id)
			data, err := f.download(gctx, u)
			if err != nil {
				return &AssetFetchError{TraitID: id, URL: u, Cause: err}
			}
			layers[i] = Layer{TraitID: id, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layers, nil
}

func (f *Fetcher) download(ctx context.Context, u string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxAssetBytes {
		return nil, fmt.Errorf("asset larger than %d bytes", maxAssetBytes)
	}
	return body, nil
}
