package draft

import (
	"bytes"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/safetyline/internal/bodymap"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/form"
)

func newTestRegistry() *Registry {
	return NewRegistry(time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// =============================================================================
// Ownership
// =============================================================================

func TestRegistry_CreateGetDiscard(t *testing.T) {
	r := newTestRegistry()

	v := r.Create("pat@acme.test", nil)
	assert.NotEmpty(t, v.ID)
	assert.Len(t, v.Form.InjuredEmployees, 1)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get("pat@acme.test", v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = r.Get("someone@else.test", v.ID)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err), "drafts are private to their owner")

	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(r.Discard("someone@else.test", v.ID)))
	require.NoError(t, r.Discard("pat@acme.test", v.ID))
	assert.Zero(t, r.Len())

	_, err = r.Get("pat@acme.test", v.ID)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestRegistry_CreateFromPrefill(t *testing.T) {
	r := newTestRegistry()
	prefill := form.New()
	prefill.Location = "Yard"
	prefill.Prefilled = true

	v := r.Create("pat@acme.test", prefill)
	prefill.Location = "changed"

	assert.True(t, v.Form.Prefilled)
	assert.Equal(t, "Yard", v.Form.Location, "the draft owns a copy")
}

// =============================================================================
// Form operations
// =============================================================================

func TestRegistry_Apply(t *testing.T) {
	r := newTestRegistry()
	owner := "pat@acme.test"
	id := r.Create(owner, nil).ID

	v, err := r.Apply(owner, id, []Op{
		{Op: OpSet, Field: "location", Value: "Site 4"},
		{Op: OpToggle, Group: domain.GroupDocumentTypes, Option: domain.DocumentTypes[0]},
		{Op: OpAppend, Group: form.GroupWitnesses},
		{Op: OpUpdate, Group: form.GroupWitnesses, Index: 1, Value: "Jordan"},
		{Op: OpRemove, Group: form.GroupInjuredEmployees, Index: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "Site 4", v.Form.Location)
	assert.Equal(t, []string{domain.DocumentTypes[0]}, v.Form.DocumentTypes)
	assert.Equal(t, []string{"", "Jordan"}, v.Form.Witnesses)
	assert.Len(t, v.Form.InjuredEmployees, 1, "the last row is never removed")

	t.Run("failing batch keeps nothing", func(t *testing.T) {
		_, err := r.Apply(owner, id, []Op{
			{Op: OpSet, Field: "location", Value: "Elsewhere"},
			{Op: OpSet, Field: "noSuchField", Value: "x"},
		})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.Contains(t, domain.ErrorMessage(err), "op 1")

		v, err := r.Get(owner, id)
		require.NoError(t, err)
		assert.Equal(t, "Site 4", v.Form.Location)
	})

	t.Run("unknown op", func(t *testing.T) {
		_, err := r.Apply(owner, id, []Op{{Op: "rename"}})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("toggle twice restores the group", func(t *testing.T) {
		toggle := Op{Op: OpToggle, Group: domain.GroupDocumentTypes, Option: domain.DocumentTypes[1]}
		v, err := r.Apply(owner, id, []Op{toggle, toggle})
		require.NoError(t, err)
		assert.Equal(t, []string{domain.DocumentTypes[0]}, v.Form.DocumentTypes)
	})
}

// =============================================================================
// Drawing
// =============================================================================

func TestRegistry_DrawAndSnapshot(t *testing.T) {
	r := newTestRegistry()
	owner := "pat@acme.test"
	id := r.Create(owner, nil).ID

	snap, err := r.Snapshot(owner, id)
	require.NoError(t, err)
	assert.Nil(t, snap.BodyMap, "no strokes, no image")

	v, err := r.Draw(owner, id, []bodymap.Event{
		{Type: bodymap.EventResize, Width: 120, Height: 90},
		{Type: bodymap.EventDown, X: 10, Y: 10},
		{Type: bodymap.EventMove, X: 40, Y: 30},
		{Type: bodymap.EventUp},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Strokes)
	assert.Equal(t, 120, v.Width)

	snap, err = r.Snapshot(owner, id)
	require.NoError(t, err)
	require.NotNil(t, snap.BodyMap)
	assert.Equal(t, 120, snap.BodyMap.Width)
	assert.Equal(t, 90, snap.BodyMap.Height)

	cfg, err := png.DecodeConfig(bytes.NewReader(snap.BodyMap.PNG))
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 90, cfg.Height)

	_, err = r.Draw(owner, id, []bodymap.Event{{Type: "wiggle"}})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestRegistry_DrawIsAllOrNothing(t *testing.T) {
	r := newTestRegistry()
	owner := "pat@acme.test"
	id := r.Create(owner, nil).ID

	before, err := r.Draw(owner, id, []bodymap.Event{{Type: bodymap.EventResize, Width: 100, Height: 80}})
	require.NoError(t, err)

	v, err := r.Draw(owner, id, []bodymap.Event{
		{Type: bodymap.EventDown, X: 10, Y: 10},
		{Type: bodymap.EventMove, X: 60, Y: 40},
		{Type: bodymap.EventUp},
		{Type: bodymap.EventMode, Mode: "erase"},
		{Type: bodymap.EventResize, Width: bodymap.MaxSide + 1, Height: 10},
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Zero(t, v.Strokes)
	assert.Equal(t, "mark", v.Mode)
	assert.Equal(t, before.UpdatedAt, v.UpdatedAt)

	snap, err := r.Snapshot(owner, id)
	require.NoError(t, err)
	assert.Nil(t, snap.BodyMap, "rejected batch drew nothing")
}

// =============================================================================
// Expiry
// =============================================================================

func TestRegistry_Expire(t *testing.T) {
	r := newTestRegistry()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	stale := r.Create("a@x.test", nil).ID
	now = now.Add(50 * time.Minute)
	fresh := r.Create("a@x.test", nil).ID

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, r.Expire())

	_, err := r.Get("a@x.test", stale)
	assert.Error(t, err)
	_, err = r.Get("a@x.test", fresh)
	assert.NoError(t, err)

	// Activity keeps a draft alive.
	now = now.Add(50 * time.Minute)
	_, err = r.Apply("a@x.test", fresh, []Op{{Op: OpSet, Field: "location", Value: "x"}})
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	assert.Zero(t, r.Expire())
	assert.Equal(t, 1, r.Len())
}
