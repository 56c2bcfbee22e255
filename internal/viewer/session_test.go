package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shiryo/internal/pdfdoc"
	"github.com/hyperjump/shiryo/internal/testutil"
)

func openSession(t *testing.T, pages ...[]string) *Session {
	t.Helper()
	doc, err := pdfdoc.Open(testutil.PDF(pages...))
	require.NoError(t, err)
	return NewSession("s1", "src1", doc)
}

func TestSession_searchAndRender(t *testing.T) {
	s := openSession(t,
		[]string{"Nothing here"},
		[]string{"Alpha beta", "alpha gamma"},
		[]string{"ALPHA"},
	)
	state, err := s.Search("alpha")
	require.NoError(t, err)
	assert.Equal(t, []pdfdoc.SearchHit{{Page: 2, Offset: 0}, {Page: 2, Offset: 11}, {Page: 3, Offset: 0}}, state.Hits)
	assert.Equal(t, 2, state.Page)

	page, err := s.Render()
	require.NoError(t, err)
	assert.Equal(t, 2, page.State.Page)
	require.Len(t, page.Overlay, 2)
	assert.Equal(t, "Alpha beta", page.Overlay[0].Text)
	require.Len(t, page.Highlights, 2)
	assert.True(t, page.Highlights[0].Active)
	assert.False(t, page.Highlights[1].Active)
	assert.Equal(t, []pdfdoc.Highlight{{Run: 1, Start: 0, End: 5}}, page.Highlights[1].Spans)

	state = s.Dispatch(NextHit{})
	state = s.Dispatch(NextHit{})
	assert.Equal(t, 3, state.Page)
	state = s.Dispatch(NextHit{})
	assert.Equal(t, 2, state.Page)
	assert.Equal(t, 0, state.Current)
}

func TestSession_renderFollowsZoomAndRotation(t *testing.T) {
	s := openSession(t, []string{"Hello"})
	s.Dispatch(ZoomIn{})
	s.Dispatch(RotateCW{})
	page, err := s.Render()
	require.NoError(t, err)
	assert.Equal(t, 1.25, page.Viewport.Scale)
	assert.Equal(t, 90, page.Viewport.Rotation)
	assert.InDelta(t, 792*1.25, page.Viewport.Width, 1e-9)
	assert.InDelta(t, 612*1.25, page.Viewport.Height, 1e-9)
}

func TestSession_thumbnailsIgnoreViewState(t *testing.T) {
	s := openSession(t, []string{"one"}, []string{"two"})
	s.Dispatch(SetZoom{Scale: 3})
	thumbs, err := s.Thumbnails()
	require.NoError(t, err)
	require.Len(t, thumbs, 2)
	assert.Equal(t, 1, thumbs[0].Page)
	assert.Equal(t, 123, thumbs[0].Width)
}

func TestSession_closed(t *testing.T) {
	s := openSession(t, []string{"x"})
	s.Close()
	_, err := s.Render()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Search("x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Thumbnails()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_openGetClose(t *testing.T) {
	r := NewRegistry(time.Minute)
	s, err := r.Open("src", testutil.PDF([]string{"a"}, []string{"b"}))
	require.NoError(t, err)
	assert.Equal(t, 2, s.State().NumPages)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Close(s.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Close(s.ID), ErrSessionNotFound)
}

func TestRegistry_openCorrupt(t *testing.T) {
	r := NewRegistry(time.Minute)
	_, err := r.Open("src", []byte("nope"))
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_capacityEvictsLeastRecentlyUsed(t *testing.T) {
	r := NewRegistry(0, WithCapacity(2))
	data := testutil.PDF([]string{"a"})
	a, err := r.Open("a", data)
	require.NoError(t, err)
	b, err := r.Open("b", data)
	require.NoError(t, err)
	_, err = r.Get(a.ID)
	require.NoError(t, err)
	_, err = r.Open("c", data)
	require.NoError(t, err)

	_, err = r.Get(b.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(10*time.Minute, WithRegistryClock(func() time.Time { return now }))
	data := testutil.PDF([]string{"a"})
	old, err := r.Open("old", data)
	require.NoError(t, err)
	now = now.Add(8 * time.Minute)
	fresh, err := r.Open("fresh", data)
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 1, r.Sweep(now))
	_, err = r.Get(old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)

	_, err = old.Render()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_closeSourceAndAll(t *testing.T) {
	r := NewRegistry(time.Minute)
	data := testutil.PDF([]string{"a"})
	for _, src := range []string{"x", "x", "y"} {
		_, err := r.Open(src, data)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, r.CloseSource("x"))
	assert.Equal(t, 1, r.Len())
	r.CloseAll()
	assert.Equal(t, 0, r.Len())
}
