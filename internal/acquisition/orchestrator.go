package acquisition

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"github.com/italolelis/asset_bootstrap/internal/manifest"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
)

// State is the per-asset acquisition state.
type State string

const (
	Idle      State = "idle"
	Requested State = "requested"
	Succeeded State = "succeeded"
)

// DirectoryFunc returns the authoritative directory.
type DirectoryFunc func(ctx context.Context) (string, error)

type assetState struct {
	state  State
	handle asset.Handle
}

// AssetStatus is the externally visible state of one asset.
type AssetStatus struct {
	ID     asset.ID     `json:"id"`
	State  State        `json:"state"`
	Handle asset.Handle `json:"handle,omitempty"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Ready     bool          `json:"ready"`
	Locale    string        `json:"locale"`
	Directory string        `json:"directory"`
	Missing   []asset.ID    `json:"missing"`
	Pending   int           `json:"pending"`
	Episode   string        `json:"episode,omitempty"`
	Assets    []AssetStatus `json:"assets"`
}

// Orchestrator issues at most one outstanding fetch per asset and decides readiness.
// Evaluate and OnOutcome are the only mutations and run under one mutex.
type Orchestrator struct {
	manifest  *manifest.Manifest
	fetcher   asset.Fetcher
	directory DirectoryFunc
	telemetry *telemetry.Telemetry
	now       func() time.Time

	mu      sync.Mutex
	locale  manifest.Locale
	states  map[asset.ID]*assetState
	pending int
	episode string

	OnFetchRequested chan asset.FetchRequest
	OnFetchFailed    chan asset.FetchOutcome
	OnReady          chan Status
}

type Option func(*Orchestrator)

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		o.telemetry = tel
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(m *manifest.Manifest, fetcher asset.Fetcher, directory DirectoryFunc, locale manifest.Locale, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		manifest:  m,
		fetcher:   fetcher,
		directory: directory,
		telemetry: &telemetry.Telemetry{},
		now:       time.Now,
		locale:    locale,
		states:    make(map[asset.ID]*assetState),

		OnFetchRequested: make(chan asset.FetchRequest, 16),
		OnFetchFailed:    make(chan asset.FetchOutcome, 16),
		OnReady:          make(chan Status, 1),
	}

	for _, d := range m.Descriptors() {
		o.states[d.ID] = &assetState{state: Idle}
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// SetLocale switches the active locale. Readiness follows the new locale immediately and
// the next Evaluate requests what it is missing.
func (o *Orchestrator) SetLocale(locale manifest.Locale) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.locale = locale
}

// Evaluate recomputes the missing set and requests every missing asset that is not already
// requested. Calling it again without new outcomes issues nothing.
func (o *Orchestrator) Evaluate(ctx context.Context, trigger string) ([]asset.FetchRequest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.evaluateLocked(ctx, trigger)
}

func (o *Orchestrator) evaluateLocked(ctx context.Context, trigger string) ([]asset.FetchRequest, error) {
	logger := logctx.LoggerFromContext(ctx).With("trigger", trigger)

	dir, err := o.directory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}

	contents := manifest.Scan(dir)
	if !contents.Readable {
		logger.WarnContext(ctx, "storage directory is not readable, treating it as empty", "path", dir)
	}

	missing := o.manifest.RequiredMissing(o.locale, contents, o.inFlightLocked())

	var issued []asset.FetchRequest

	for _, id := range missing.Sorted() {
		st := o.stateLocked(id)
		if st.state == Requested {
			continue
		}

		if !o.manifest.Acquirable(id) {
			logger.WarnContext(ctx, "asset is missing and cannot be fetched, it must be imported", "asset_id", id)

			continue
		}

		d, err := o.manifest.Descriptor(id)
		if err != nil {
			continue
		}

		if o.episode == "" {
			o.episode = uuid.NewString()
		}

		req := asset.FetchRequest{
			Asset:       id,
			URL:         d.URL,
			Destination: filepath.Join(dir, d.FetchName),
			Label:       d.Label,
			IssuedAt:    o.now(),
		}

		st.state = Requested
		o.pending++

		ectx := logctx.WithEpisode(ctx, o.episode)

		handle, err := o.fetcher.StartFetch(ectx, req)
		if err != nil {
			st.state = Idle
			o.pending--

			logger.ErrorContext(ectx, "failed to start fetch", "asset_id", id, "err", err)

			continue
		}

		st.handle = handle
		issued = append(issued, req)

		logger.InfoContext(ectx, "fetch requested", "asset_id", id, "handle", handle, "pending", o.pending)
		emit(o.OnFetchRequested, req)
	}

	if o.pending == 0 {
		o.episode = ""
	}

	ready := missing.Len() == 0 && o.pending == 0
	o.telemetry.RecordEvaluation(trigger, missing.Len(), o.pending, ready)

	logger.DebugContext(ctx, "manifest evaluated",
		"locale", o.locale, "missing", missing.String(), "issued", len(issued), "pending", o.pending, "ready", ready)

	return issued, nil
}

// OnOutcome applies one fetch outcome. Outcomes for handles the orchestrator no longer
// tracks are ignored, so pending never goes negative.
func (o *Orchestrator) OnOutcome(ctx context.Context, outcome asset.FetchOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	logger := logctx.LoggerFromContext(ctx).With("asset_id", outcome.Asset, "handle", outcome.Handle)
	if o.episode != "" {
		ctx = logctx.WithEpisode(ctx, o.episode)
	}

	st, ok := o.states[outcome.Asset]
	if !ok || st.state != Requested || st.handle != outcome.Handle {
		logger.DebugContext(ctx, "ignoring stale fetch outcome", "outcome", outcome.Status)

		// A transfer that outlived a failure reset may have completed the directory.
		// Report it, but leave fetching to the next trigger.
		if outcome.Succeeded() && o.pending == 0 {
			if status := o.statusLocked(ctx); status.Ready {
				logger.InfoContext(ctx, "all required assets present after late fetch")
				emit(o.OnReady, status)
			}
		}

		return
	}

	if !outcome.Succeeded() {
		logger.WarnContext(ctx, "fetch failed, resetting in-flight batch", "err", outcome.Err, "pending", o.pending)

		o.resetLocked()
		emit(o.OnFetchFailed, outcome)

		return
	}

	st.state = Succeeded
	o.pending--

	logger.InfoContext(ctx, "fetch succeeded", "pending", o.pending)

	if o.pending > 0 {
		return
	}

	o.resetLocked()

	if _, err := o.evaluateLocked(ctx, "outcome"); err != nil {
		logger.ErrorContext(ctx, "failed to re-evaluate after episode", "err", err)

		return
	}

	if status := o.statusLocked(ctx); status.Ready {
		logger.InfoContext(ctx, "all required assets present")
		emit(o.OnReady, status)
	}
}

// IsReady recomputes readiness from the current directory. It never mutates state.
func (o *Orchestrator) IsReady(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.statusLocked(ctx).Ready
}

// Status reports readiness, the missing set and every asset's state.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.statusLocked(ctx)
}

// Run applies outcomes one at a time until ctx is done or outcomes is closed.
func (o *Orchestrator) Run(ctx context.Context, outcomes <-chan asset.FetchOutcome) {
	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("orchestrator panic",
				"operation", "apply_outcomes",
				"panic", r,
				"stack", string(debug.Stack()))

			if ctx.Err() == nil {
				logger.Info("restarting orchestrator after panic", "operation", "apply_outcomes")
				time.Sleep(time.Second)
				o.Run(ctx, outcomes)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("orchestrator shutdown", "reason", "context_cancelled")

			return
		case outcome, ok := <-outcomes:
			if !ok {
				logger.Info("orchestrator shutdown", "reason", "outcomes_closed")

				return
			}

			o.OnOutcome(ctx, outcome)
		}
	}
}

func (o *Orchestrator) statusLocked(ctx context.Context) Status {
	status := Status{
		Locale:  o.locale.String(),
		Pending: o.pending,
		Episode: o.episode,
		Missing: []asset.ID{},
	}

	for _, d := range o.manifest.Descriptors() {
		as := AssetStatus{ID: d.ID, State: Idle}
		if st, ok := o.states[d.ID]; ok {
			as.State, as.Handle = st.state, st.handle
		}

		status.Assets = append(status.Assets, as)
	}

	dir, err := o.directory(ctx)
	if err != nil {
		return status
	}

	status.Directory = dir

	missing := o.manifest.RequiredMissing(o.locale, manifest.Scan(dir), o.inFlightLocked())
	status.Missing = missing.Sorted()
	status.Ready = missing.Len() == 0 && o.pending == 0

	return status
}

func (o *Orchestrator) stateLocked(id asset.ID) *assetState {
	st, ok := o.states[id]
	if !ok {
		st = &assetState{state: Idle}
		o.states[id] = st
	}

	return st
}

func (o *Orchestrator) inFlightLocked() asset.Set {
	inFlight := asset.NewSet()

	for id, st := range o.states {
		if st.state == Requested {
			inFlight.Add(id)
		}
	}

	return inFlight
}

// resetLocked returns every asset to idle and ends the episode.
func (o *Orchestrator) resetLocked() {
	for _, st := range o.states {
		st.state = Idle
		st.handle = 0
	}

	o.pending = 0
	o.episode = ""
}

// emit never blocks the owner; a full channel drops the event.
func emit[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
