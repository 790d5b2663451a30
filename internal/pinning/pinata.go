package pinning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const pinFilePath = "/pinning/pinFileToIPFS"

type Pinata struct {
	BaseURL string
	Client  *http.Client

	// JWT takes precedence over the key pair when both are set.
	JWT       string
	APIKey    string
	SecretKey string
}

func NewPinata(baseURL, jwt, apiKey, secretKey string) *Pinata {
	return &Pinata{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		JWT:       jwt,
		APIKey:    apiKey,
		SecretKey: secretKey,
		Client:    &http.Client{Timeout: 2 * time.Minute},
	}
}

type pinataMetadata struct {
	Name string `json:"name"`
}

func (p *Pinata) PinFile(ctx context.Context, r io.Reader, name string) (*PinResult, error) {
	if p.JWT == "" && (p.APIKey == "" || p.SecretKey == "") {
		return nil, errors.New("pinata: missing credentials")
	}
	meta, err := json.Marshal(pinataMetadata{Name: name})
	if err != nil {
		return nil, fmt.Errorf("pinata: encode metadata: %w", err)
	}

	// stream the multipart body instead of buffering the whole file
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, r, meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+pinFilePath, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("pinata: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+p.JWT)
	} else {
		req.Header.Set("pinata_api_key", p.APIKey)
		req.Header.Set("pinata_secret_api_key", p.SecretKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("pinata: request: %w", err)
	}
	defer resp.Body.Close()
	// unblocks the writer goroutine if the server answered early
	_ = pr.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("pinata: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out PinResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("pinata: decode: %w", err)
	}
	if out.IpfsHash == "" {
		return nil, errors.New("pinata: response missing IpfsHash")
	}
	return &out, nil
}

func writeMultipart(mw *multipart.Writer, r io.Reader, meta []byte) error {
	part, err := mw.CreateFormFile("file", "composite.png")
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return err
	}
	return mw.Close()
}
