// Package draft keeps in-progress incident reports on the server.
//
// A draft is one authoring session: an IncidentForm plus the body-map
// drawing surface. Clients change it with small operations and submit it
// once the form validates. Drafts that sit idle longer than the registry's
// TTL are dropped.
package draft

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/safetyline/internal/bodymap"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
	"github.com/DukeRupert/safetyline/internal/metrics"
)

// Op kinds accepted by Apply.
const (
	OpSet    = "set"
	OpToggle = "toggle"
	OpAppend = "append"
	OpUpdate = "update"
	OpRemove = "remove"
)

// Op is one form operation as posted by clients.
type Op struct {
	Op     string `json:"op"`
	Field  string `json:"field,omitempty"`
	Group  string `json:"group,omitempty"`
	Option string `json:"option,omitempty"`
	Index  int    `json:"index,omitempty"`
	Value  string `json:"value,omitempty"`
}

func (o Op) apply(f *form.IncidentForm) error {
	switch o.Op {
	case OpSet:
		return f.Set(o.Field, o.Value)
	case OpToggle:
		return f.Toggle(o.Group, o.Option)
	case OpAppend:
		return f.AppendRow(o.Group)
	case OpUpdate:
		return f.UpdateRow(o.Group, o.Index, o.Field, o.Value)
	case OpRemove:
		return f.RemoveRow(o.Group, o.Index)
	}
	return domain.Invalid("draft.apply", fmt.Sprintf("unknown op %q", o.Op))
}

// View describes a draft without flattening its drawing.
type View struct {
	ID        string             `json:"id"`
	Form      *form.IncidentForm `json:"form"`
	Strokes   int                `json:"strokes"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Mode      string             `json:"mode"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Snapshot is a copy of the form with the flattened body-map image, ready
// for submission. BodyMap is nil when nothing was drawn.
type Snapshot struct {
	ID      string
	Form    *form.IncidentForm
	BodyMap *domain.BodyMapImage
}

type entry struct {
	id        string
	owner     string
	form      *form.IncidentForm
	surface   *bodymap.Surface
	updatedAt time.Time
}

func (e *entry) view() View {
	w, h := e.surface.Size()
	return View{
		ID:        e.id,
		Form:      e.form.Clone(),
		Strokes:   e.surface.Strokes(),
		Width:     w,
		Height:    h,
		Mode:      e.surface.Mode().String(),
		UpdatedAt: e.updatedAt,
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds every open draft. One mutex guards all of them.
type Registry struct {
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	drafts map[string]*entry
}

// NewRegistry creates an empty registry. Call Run to start idle expiry.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
		drafts: make(map[string]*entry),
	}
}

// Run evicts idle drafts until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Expire(); n > 0 {
				r.logger.Info("expired idle drafts", "count", n)
			}
		}
	}
}

// Expire drops drafts idle longer than the TTL and returns how many went.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	n := 0
	for id, e := range r.drafts {
		if e.updatedAt.Before(cutoff) {
			delete(r.drafts, id)
			n++
		}
	}
	metrics.DraftsActive.Set(float64(len(r.drafts)))
	return n
}

// Len returns the number of open drafts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}

// Create opens a draft for owner. A nil prefill starts from form.New.
func (r *Registry) Create(owner string, prefill *form.IncidentForm) View {
	f := form.New()
	if prefill != nil {
		f = prefill.Clone()
	}
	e := &entry{
		id:        uuid.NewString(),
		owner:     owner,
		form:      f,
		surface:   bodymap.NewReferenceSurface(),
		updatedAt: r.now(),
	}

	r.mu.Lock()
	r.drafts[e.id] = e
	metrics.DraftsActive.Set(float64(len(r.drafts)))
	v := e.view()
	r.mu.Unlock()

	r.logger.Debug("draft created", "draft_id", e.id, "owner", owner, "prefilled", f.Prefilled)
	return v
}

// lookup returns the draft; callers hold r.mu.
func (r *Registry) lookup(op, owner, id string) (*entry, error) {
	e, ok := r.drafts[id]
	if !ok || e.owner != owner {
		return nil, domain.NotFound(op, "draft", id)
	}
	return e, nil
}

// Get returns the current state of a draft.
func (r *Registry) Get(owner, id string) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup("draft.get", owner, id)
	if err != nil {
		return View{}, err
	}
	return e.view(), nil
}

// Apply runs ops in order against the draft's form. The first failing op
// stops the batch and nothing from the batch is kept.
func (r *Registry) Apply(owner, id string, ops []Op) (View, error) {
	const op = "draft.apply"

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(op, owner, id)
	if err != nil {
		return View{}, err
	}

	working := e.form.Clone()
	for i, o := range ops {
		if err := o.apply(working); err != nil {
			return View{}, domain.Wrap(err, domain.EINVALID, op,
				fmt.Sprintf("op %d: %s", i, domain.ErrorMessage(err)))
		}
	}
	e.form = working
	e.updatedAt = r.now()
	return e.view(), nil
}

// Draw replays body-map events on the draft's surface. A batch with a
// malformed event leaves the surface as it was.
func (r *Registry) Draw(owner, id string, events []bodymap.Event) (View, error) {
	const op = "draft.draw"

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(op, owner, id)
	if err != nil {
		return View{}, err
	}
	working := e.surface.Clone()
	if err := working.Replay(events); err != nil {
		return e.view(), domain.Wrap(err, domain.EINVALID, op, err.Error())
	}
	e.surface = working
	e.updatedAt = r.now()
	return e.view(), nil
}

// Snapshot returns a copy of the form and the flattened drawing. A drawing
// that cannot be flattened is logged and left out.
func (r *Registry) Snapshot(owner, id string) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup("draft.snapshot", owner, id)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{ID: e.id, Form: e.form.Clone()}
	if !e.surface.Drawn() {
		return snap, nil
	}
	reference, err := bodymap.Reference()
	if err != nil {
		r.logger.Warn("body diagram unavailable", "draft_id", id, "error", err)
		return snap, nil
	}
	img, err := e.surface.Flatten(reference)
	if err != nil {
		r.logger.Warn("failed to flatten body map", "draft_id", id, "error", err)
		return snap, nil
	}
	if img == nil {
		r.logger.Warn("body map not captured, surface has no size", "draft_id", id)
	}
	snap.BodyMap = img
	return snap, nil
}

// Discard removes the draft.
func (r *Registry) Discard(owner, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup("draft.discard", owner, id); err != nil {
		return err
	}
	delete(r.drafts, id)
	metrics.DraftsActive.Set(float64(len(r.drafts)))
	return nil
}
