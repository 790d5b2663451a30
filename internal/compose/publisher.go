package compose

import (
	"context"
	"errors"
	"time"

	"traitforge/internal/pinning"
	"traitforge/pkg/models"
)

type Publisher struct {
	Pinner  pinning.Pinner
	Timeout time.Duration
}

func NewPublisher(p pinning.Pinner, timeout time.Duration) *Publisher {
	return &Publisher{Pinner: p, Timeout: timeout}
}

// Label is the provenance name attached to a pinned composite.
func Label(ids []models.TraitID) string {
	return "Composition of following token ids " + models.JoinTraitIDs(ids)
}

// Publish streams the artifact to the pinning service.
func (p *Publisher) Publish(ctx context.Context, a *Artifact, label string) (*pinning.PinResult, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	f, err := a.Open()
	if err != nil {
		return nil, &PublishError{Cause: err}
	}
	defer f.Close()

	res, err := p.Pinner.PinFile(ctx, f, label)
	if err != nil {
		return nil, &PublishError{Cause: err}
	}
	if res == nil || res.IpfsHash == "" {
		return nil, &PublishError{Cause: errors.New("pinning service returned no content identifier")}
	}
	return res, nil
}
