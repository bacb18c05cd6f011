package narrative

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScheduleValues(t *testing.T) {
	sched := DefaultSchedule()
	require.NoError(t, sched.Validate())

	cases := []struct {
		p    float64
		want float64
		hold bool
	}{
		{0, 1, false},
		{0.1, 1.4, false},
		{0.25, 2, false},
		{0.4, 2.6, false},
		{0.55, 3.2, false},
		{0.62, 3.4, true},
		{0.65, 4, false},
		{0.75, 4.4, false},
		{0.85, 5, false},
		{1, 5.6, false},
		{1.5, 5.6, false},
		{-1, 1, false},
	}
	for _, tc := range cases {
		got, hold := sched.Stage(tc.p)
		assert.InDelta(t, tc.want, float64(got), 1e-9, "stage at p=%v", tc.p)
		assert.Equal(t, tc.hold, hold, "hold at p=%v", tc.p)
	}
}

func TestStageContinuousAndMonotonicWithinSegments(t *testing.T) {
	sched := DefaultSchedule()
	const dp = 0.0005
	for i, seg := range sched.Segments {
		if seg.Hold {
			continue
		}
		prev, _ := sched.Stage(seg.From)
		for p := seg.From + dp; p < seg.To; p += dp {
			got, hold := sched.Stage(p)
			require.False(t, hold)
			require.Equal(t, i, sched.Segment(p))
			require.Greater(t, float64(got), float64(prev), "segment %d not increasing at p=%v", i, p)
			require.LessOrEqual(t, float64(got-prev), 4*dp+1e-9, "segment %d jumps at p=%v", i, p)
			prev = got
		}
	}
}

func TestForwardPassRevealsOnce(t *testing.T) {
	seq := NewSequencer(DefaultSchedule())
	sched := DefaultSchedule()
	before, _ := sched.Stage(0.5999)
	bandEnd, _ := sched.Stage(0.6499)

	var reveals []Observation
	for i := 0; i <= 1000; i++ {
		obs := seq.Observe(float64(i) / 1000)
		if obs.Revealed {
			reveals = append(reveals, obs)
		}
	}
	require.Len(t, reveals, 1)
	got := reveals[0]
	assert.Greater(t, float64(got.Stage), float64(before))
	assert.LessOrEqual(t, float64(got.Stage), float64(bandEnd))
	assert.True(t, got.OverlayOpen)
	assert.True(t, seq.State().OverlayOpen, "overlay stays open until completion")
	assert.Equal(t, 1, seq.Reveals())
}

func TestNoRevealWhileOverlayOpen(t *testing.T) {
	seq := NewSequencer(DefaultSchedule())
	require.True(t, seq.Observe(0.61).Revealed)
	seq.Observe(0.5)
	assert.False(t, seq.Observe(0.62).Revealed)
	assert.Equal(t, 1, seq.Reveals())
}

func TestNoRevealAfterCompletion(t *testing.T) {
	seq := NewSequencer(DefaultSchedule())
	require.True(t, seq.Observe(0.63).Revealed)

	done := seq.Complete()
	assert.True(t, done.Completed)
	assert.False(t, done.OverlayOpen)

	for pass := 0; pass < 3; pass++ {
		for i := 1000; i >= 0; i -= 7 {
			assert.False(t, seq.Observe(float64(i)/1000).Revealed)
		}
		for i := 0; i <= 1000; i += 7 {
			assert.False(t, seq.Observe(float64(i)/1000).Revealed)
		}
	}
	assert.Equal(t, 1, seq.Reveals())
	assert.False(t, seq.State().OverlayOpen)
}

func TestHoldKeepsPreviousStage(t *testing.T) {
	seq := NewSequencer(DefaultSchedule())
	first := seq.Observe(0.62)
	assert.InDelta(t, 3.4, float64(first.Stage), 1e-9, "no previous sample")
	seq.Complete()

	seq.Observe(0.7)
	back := seq.Observe(0.63)
	assert.InDelta(t, 4.2, float64(back.Stage), 1e-9, "reverse scroll keeps the later stage")
	assert.True(t, back.Holding)

	seq.Observe(0.3)
	forward := seq.Observe(0.61)
	assert.InDelta(t, 3.4, float64(forward.Stage), 1e-9)
}

func TestUnmeasuredLayoutHoldsInitialStage(t *testing.T) {
	seq := NewSequencer(DefaultSchedule())
	obs := seq.ObserveLayout(0.62, false)
	assert.Equal(t, Stage(0), obs.Stage)
	assert.False(t, obs.Revealed)
	assert.False(t, obs.Measured)

	obs = seq.ObserveLayout(0.62, true)
	assert.True(t, obs.Revealed)
	assert.True(t, obs.Measured)
}

func TestLoadSchedule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")
	raw := `segments:
  - {from: 0, to: 0.5, base: 1, rate: 2}
  - {from: 0.5, to: 0.6, hold: true}
  - {from: 0.6, to: 1, base: 3, rate: 2.5}
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	sched, err := LoadSchedule(path)
	require.NoError(t, err)
	require.Len(t, sched.Segments, 3)

	got, hold := sched.Stage(0.55)
	assert.True(t, hold)
	assert.InDelta(t, 2, float64(got), 1e-9)
	got, _ = sched.Stage(0.8)
	assert.InDelta(t, 3.5, float64(got), 1e-9)
}

func TestScheduleValidation(t *testing.T) {
	cases := map[string]Schedule{
		"empty":      {},
		"gap":        {Segments: []Segment{{From: 0, To: 0.4}, {From: 0.5, To: 1}}},
		"short":      {Segments: []Segment{{From: 0, To: 0.9}}},
		"hold first": {Segments: []Segment{{From: 0, To: 1, Hold: true}}},
		"empty seg":  {Segments: []Segment{{From: 0, To: 0}, {From: 0, To: 1}}},
	}
	for name, sched := range cases {
		assert.ErrorIs(t, sched.Validate(), ErrInvalidSchedule, name)
	}

	_, err := LoadSchedule(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSceneWindows(t *testing.T) {
	assert.Equal(t, []Scene{SceneOlive}, VisibleScenes(1))
	assert.Equal(t, []Scene{SceneOlive, SceneGrinding}, VisibleScenes(2))
	assert.Equal(t, []Scene{SceneGrinding, SceneSeaweed}, VisibleScenes(2.2))
	assert.Equal(t, []Scene{SceneSeaweed, SceneLiquid}, VisibleScenes(2.8))
	assert.Equal(t, []Scene{SceneLiquid, SceneFiber}, VisibleScenes(3.05))
	assert.Equal(t, []Scene{SceneBiomaterial}, VisibleScenes(9))
	assert.Empty(t, VisibleScenes(0))
	assert.Len(t, AllScenes(), 6)

	olive, ok := Window(SceneOlive)
	require.True(t, ok)
	assert.InDelta(t, 0.5, olive.Local(1.6), 1e-9)
	assert.Equal(t, 0.0, olive.Local(0.5))
	assert.Equal(t, 1.0, olive.Local(3))

	bio, _ := Window(SceneBiomaterial)
	assert.True(t, bio.Visible(100))
	assert.Equal(t, 1.0, bio.Local(4))

	_, ok = Window("unknown")
	assert.False(t, ok)
}

func TestComposerFrame(t *testing.T) {
	c := NewComposer(1)

	frame := c.Frame(2.8, 1)
	assert.Nil(t, frame.Olive)
	assert.NotNil(t, frame.Seaweed)
	require.NotNil(t, frame.Liquid)
	assert.Len(t, frame.Liquid.Positions, 150)
	assert.Nil(t, frame.Grinding)
	assert.True(t, frame.Visible[SceneLiquid])
	assert.False(t, frame.Visible[SceneFiber])

	held := append(frame.Liquid.Positions[:0:0], frame.Liquid.Positions...)
	next := c.Frame(2.8, 1.1)
	assert.Equal(t, held, frame.Liquid.Positions, "earlier frame must not change")
	assert.NotEqual(t, held, next.Liquid.Positions)

	late := c.Frame(4.5, 2)
	assert.Len(t, late.Biomaterial, 8)
	assert.Nil(t, late.Fiber)

	fiber := c.Frame(3.5, 10)
	require.NotNil(t, fiber.Fiber)
	assert.Len(t, fiber.Fiber.Spheres, 60)
	assert.InDelta(t, 1, fiber.Fiber.Rotation.Y, 1e-9)
}

func TestSections(t *testing.T) {
	got := Sections()
	require.Len(t, got, 4)
	assert.Equal(t, "MOLIDO", got[0].Title)
	got[0].Title = "changed"
	assert.Equal(t, "MOLIDO", Sections()[0].Title)
}
