package compose

import (
	"context"

	"go.uber.org/zap"

	"traitforge/internal/metrics"
	"traitforge/pkg/models"
)

// Store is the slice of the token store the pipeline needs.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	UpdateComposition(ctx context.Context, id string, traitIDs []models.TraitID, image string) (*models.Token, error)
}

type Updater struct {
	Store          Store
	GatewayBaseURL string
	Logger         *zap.Logger
}

func NewUpdater(store Store, gatewayBaseURL string, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{Store: store, GatewayBaseURL: gatewayBaseURL, Logger: logger}
}

func (u *Updater) Exists(ctx context.Context, masterID string) (bool, error) {
	return u.Store.Exists(ctx, masterID)
}

// ImageURL is what the master record's image field is set to.
func (u *Updater) ImageURL(cid string) string {
	return u.GatewayBaseURL + cid
}

// Update links the master to its new composite. A failure here leaves the
// pin orphaned, so it is logged with everything needed to fix it by hand.
func (u *Updater) Update(ctx context.Context, masterID string, traitIDs []models.TraitID, cid string) (*models.Token, error) {
	image := u.ImageURL(cid)
	t, err := u.Store.UpdateComposition(ctx, masterID, traitIDs, image)
	if err != nil {
		metrics.RecordUnlinkedPin()
		u.Logger.Error("composite pinned but master not updated; reconcile manually",
			zap.String("master_id", masterID),
			zap.String("cid", cid),
			zap.String("image", image),
			zap.String("trait_ids", models.JoinTraitIDs(traitIDs)),
			zap.Error(err),
		)
		return nil, &PersistenceError{MasterID: masterID, CID: cid, Cause: err}
	}
	return t, nil
}
