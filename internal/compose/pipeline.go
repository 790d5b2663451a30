// Package compose turns an ordered list of trait ids into a single master
// image, pins it, and links it to the master token record.
//
// A run moves through validating, fetching_assets, composing, publishing
// and updating, and either reaches done or stops with one *StageError.
// The on-disk composite is removed on every exit path.
package compose

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"traitforge/internal/events"
	"traitforge/internal/metrics"
	"traitforge/internal/pinning"
	"traitforge/pkg/models"
)

// Notifier receives an event after every successful run. BroadcastJSON is
// called synchronously and must bound its own writes.
type Notifier interface {
	BroadcastJSON(v any)
}

type Request struct {
	MasterID string
	TraitIDs []models.TraitID
}

type Result struct {
	MasterID string
	TraitIDs []models.TraitID
	CID      string
	Image    string
	Pin      *pinning.PinResult
	Token    *models.Token
}

type Pipeline struct {
	Fetcher    *Fetcher
	Compositor *Compositor
	Publisher  *Publisher
	Updater    *Updater
	TempDir    string
	Notifier   Notifier
	Logger     *zap.Logger

	locks keyedMutex
}

type Options struct {
	TempDir  string
	Notifier Notifier
	Logger   *zap.Logger
}

func New(f *Fetcher, c *Compositor, p *Publisher, u *Updater, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Pipeline{
		Fetcher:    f,
		Compositor: c,
		Publisher:  p,
		Updater:    u,
		TempDir:    opts.TempDir,
		Notifier:   opts.Notifier,
		Logger:     opts.Logger,
	}
}

// Run executes one composition for req. Runs for the same master are
// serialized; runs for different masters do not wait on each other.
func (p *Pipeline) Run(ctx context.Context, req Request) (res *Result, err error) {
	r := &run{
		id:      uuid.NewString(),
		stage:   StageValidating,
		started: time.Now(),
	}
	r.entered = r.started
	r.log = p.Logger.With(
		zap.String("run_id", r.id),
		zap.String("master_id", req.MasterID),
		zap.String("trait_ids", models.JoinTraitIDs(req.TraitIDs)),
	)
	defer func() { r.finish(err) }()

	req.MasterID = strings.TrimSpace(req.MasterID)
	if verr := validate(req); verr != nil {
		return nil, r.fail(verr)
	}

	unlock, err := p.locks.Lock(ctx, req.MasterID)
	if err != nil {
		return nil, r.fail(fmt.Errorf("wait for master lock: %w", err))
	}
	defer unlock()

	ok, err := p.Updater.Exists(ctx, req.MasterID)
	if err != nil {
		return nil, r.fail(fmt.Errorf("check master %s: %w", req.MasterID, err))
	}
	if !ok {
		return nil, r.fail(&NotFoundError{MasterID: req.MasterID})
	}

	r.advance(StageFetchingAssets)
	layers, err := p.Fetcher.Fetch(ctx, req.TraitIDs)
	if err != nil {
		return nil, r.fail(err)
	}

	r.advance(StageComposing)
	data, err := p.Compositor.Compose(layers)
	if err != nil {
		return nil, r.fail(err)
	}
	artifact, err := WriteArtifact(p.TempDir, data, r.log)
	if err != nil {
		return nil, r.fail(&CompositionError{Cause: err})
	}
	defer artifact.Release()

	r.advance(StagePublishing)
	pin, err := p.Publisher.Publish(ctx, artifact, Label(req.TraitIDs))
	if err != nil {
		return nil, r.fail(err)
	}
	r.log.Info("composite pinned", zap.String("cid", pin.IpfsHash), zap.Bool("duplicate", pin.IsDuplicate))

	r.advance(StageUpdating)
	tok, err := p.Updater.Update(ctx, req.MasterID, req.TraitIDs, pin.IpfsHash)
	if err != nil {
		return nil, r.fail(err)
	}

	r.advance(StageDone)
	res = &Result{
		MasterID: req.MasterID,
		TraitIDs: req.TraitIDs,
		CID:      pin.IpfsHash,
		Image:    tok.Image,
		Pin:      pin,
		Token:    tok,
	}
	p.notify(res)
	return res, nil
}

func validate(req Request) error {
	if req.MasterID == "" || len(req.TraitIDs) == 0 {
		return &ValidationError{Msg: "Please provide following properties on body: traitIds & masterId"}
	}
	for _, id := range req.TraitIDs {
		s := strings.TrimSpace(string(id))
		if s == "" || strings.ContainsAny(s, `/\?#`) || s == "." || s == ".." {
			return &ValidationError{Msg: fmt.Sprintf("invalid trait id %q", string(id))}
		}
	}
	return nil
}

// notify runs while the master lock is still held, so events for one
// master are broadcast in the order their updates were written.
func (p *Pipeline) notify(res *Result) {
	if p.Notifier == nil {
		return
	}
	ids := make([]string, len(res.TraitIDs))
	for i, id := range res.TraitIDs {
		ids[i] = string(id)
	}
	p.Notifier.BroadcastJSON(events.MasterComposedEvent{
		Type:     events.TypeMasterComposed,
		ID:       uuid.NewString(),
		MasterID: res.MasterID,
		TraitIDs: ids,
		CID:      res.CID,
		Image:    res.Image,
		At:       time.Now().UTC(),
	})
}

// run tracks the state of one pipeline invocation.
type run struct {
	id      string
	stage   Stage
	started time.Time
	entered time.Time
	log     *zap.Logger
}

func (r *run) advance(next Stage) {
	if next <= r.stage {
		panic(fmt.Sprintf("compose: illegal transition %s -> %s", r.stage, next))
	}
	now := time.Now()
	metrics.ObserveStage(r.stage.String(), now.Sub(r.entered))
	r.log.Debug("stage transition", zap.Stringer("from", r.stage), zap.Stringer("to", next))
	r.stage = next
	r.entered = now
}

func (r *run) fail(cause error) error {
	metrics.ObserveStage(r.stage.String(), time.Since(r.entered))
	return &StageError{Stage: r.stage, Err: cause}
}

func (r *run) finish(err error) {
	elapsed := time.Since(r.started)
	if err == nil {
		metrics.RecordRun(StageDone.String(), true)
		r.log.Info("composition finished", zap.Duration("elapsed", elapsed))
		return
	}

	metrics.RecordRun(r.stage.String(), false)
	se, _ := err.(*StageError)
	if se != nil && se.HTTPStatus() < 500 {
		r.log.Info("composition rejected", zap.Stringer("stage", r.stage), zap.Error(err))
		return
	}
	r.log.Error("composition failed", zap.Stringer("stage", r.stage), zap.Duration("elapsed", elapsed), zap.Error(err))
}
