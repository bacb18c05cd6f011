package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fillesume/storefront/internal/animation"
	"github.com/fillesume/storefront/internal/interactive"
	"github.com/fillesume/storefront/internal/narrative"
	"github.com/fillesume/storefront/internal/platform/config"
	"github.com/fillesume/storefront/internal/platform/jobs"
	"github.com/fillesume/storefront/internal/platform/observability"
)

const (
	defaultMaxExperienceSessions = 1000
	completionPublishTimeout     = 5 * time.Second
)

var (
	// ErrExperienceNotFound reports an unknown or reaped session.
	ErrExperienceNotFound = errors.New("experience service: session not found")
	// ErrExperienceInvalidInput reports a malformed or rejected event.
	ErrExperienceInvalidInput = errors.New("experience service: invalid input")
	// ErrExperienceLimit reports that no more sessions can be opened.
	ErrExperienceLimit = errors.New("experience service: too many sessions")
	// ErrExperienceLocked reports a mixing event before the overlay has been
	// revealed.
	ErrExperienceLocked = errors.New("experience service: mixing overlay not revealed")
	// ErrExperienceClosed reports use after Close.
	ErrExperienceClosed = errors.New("experience service: closed")
)

var (
	sessionsStarted = observability.NewCounter("storefront.experience.sessions", "Experience sessions opened")
	mixingCompleted = observability.NewCounter("storefront.experience.mixing_completed", "Mixing games completed")
)

// ExperienceServiceDeps bundles the collaborators the experience service needs.
type ExperienceServiceDeps struct {
	Schedule    narrative.Schedule
	Viewer      config.ViewerConfig
	Mixing      config.MixingConfig
	IdleTTL     time.Duration
	MaxSessions int
	// TimeSource drives the viewer and mixing runtimes.
	TimeSource interactive.Clock
	Clock      func() time.Time
	Events     jobs.Publisher
	AssetURL   func(ctx context.Context, path string) string
	IDGen      func() string
	Seed       func() uint64
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type experienceService struct {
	schedule    narrative.Schedule
	viewer      config.ViewerConfig
	mixing      config.MixingConfig
	idleTTL     time.Duration
	maxSessions int
	timeSource  interactive.Clock
	now         func() time.Time
	events      jobs.Publisher
	assetURL    func(context.Context, string) string
	newID       func() string
	seed        func() uint64
	logger      func(context.Context, string, map[string]any)

	mu       sync.Mutex
	sessions map[string]*experienceSession
	closed   bool
}

type experienceSession struct {
	id        string
	owner     string
	seed      uint64
	startedAt time.Time

	sequencer *narrative.Sequencer
	composer  *narrative.Composer
	viewer    *interactive.ViewerRuntime
	mixing    *interactive.MixingRuntime

	mu       sync.Mutex
	lastSeen time.Time
	hero     *animation.HeroLogo
	globe    *animation.Globe
}

// NewExperienceService constructs an ExperienceService.
func NewExperienceService(deps ExperienceServiceDeps) (ExperienceService, error) {
	schedule := deps.Schedule
	if len(schedule.Segments) == 0 {
		schedule = narrative.DefaultSchedule()
	}
	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("experience service: %w", err)
	}
	if deps.Viewer.Frames < 1 {
		return nil, errors.New("experience service: viewer frames must be positive")
	}
	if deps.Mixing.Tick <= 0 {
		return nil, errors.New("experience service: mixing tick must be positive")
	}

	maxSessions := deps.MaxSessions
	if maxSessions <= 0 {
		maxSessions = defaultMaxExperienceSessions
	}
	timeSource := deps.TimeSource
	if timeSource == nil {
		timeSource = interactive.SystemClock()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	events := deps.Events
	if events == nil {
		events = jobs.NopPublisher{}
	}
	assetURL := deps.AssetURL
	if assetURL == nil {
		assetURL = func(_ context.Context, path string) string { return "/" + strings.TrimPrefix(path, "/") }
	}
	newID := deps.IDGen
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	seed := deps.Seed
	if seed == nil {
		seed = rand.Uint64
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &experienceService{
		schedule:    schedule,
		viewer:      deps.Viewer,
		mixing:      deps.Mixing,
		idleTTL:     deps.IdleTTL,
		maxSessions: maxSessions,
		timeSource:  timeSource,
		now:         func() time.Time { return now().UTC() },
		events:      events,
		assetURL:    assetURL,
		newID:       newID,
		seed:        seed,
		logger:      logger,
		sessions:    make(map[string]*experienceSession),
	}, nil
}

func (s *experienceService) Start(ctx context.Context, ownerID string) (ExperienceView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ExperienceView{}, ErrExperienceClosed
	}
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		return ExperienceView{}, ErrExperienceLimit
	}
	now := s.now()
	sess := &experienceSession{
		id:        s.newID(),
		owner:     ownerID,
		seed:      s.seed(),
		startedAt: now,
		lastSeen:  now,
		sequencer: narrative.NewSequencer(s.schedule),
		hero:      animation.NewHeroLogo(),
		globe:     &animation.Globe{},
	}
	sess.composer = narrative.NewComposer(sess.seed)
	sess.viewer = interactive.NewViewerRuntime(
		interactive.NewViewer(s.viewer.Frames, s.viewer.Sensitivity, s.viewer.CountdownTicks),
		s.viewer.AutoplayInterval,
		s.viewer.CountdownTick,
		interactive.WithViewerClock(s.timeSource),
	)
	sess.mixing = interactive.NewMixingRuntime(
		interactive.NewMixingGame(s.mixing.Step, s.mixing.Target, s.mixing.SettleDelay),
		s.mixing.Tick,
		interactive.WithMixingClock(s.timeSource),
		interactive.WithCompletion(func() { s.completeMixing(sess) }),
	)
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sessionsStarted.Add(ctx, 1)
	s.logger(ctx, "experience.started", map[string]any{"experienceId": sess.id})
	return s.view(ctx, sess), nil
}

func (s *experienceService) End(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	ok = ok && sess.owner == ownerID
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrExperienceNotFound
	}
	sess.close()
	s.logger(ctx, "experience.ended", map[string]any{"experienceId": id})
	return nil
}

func (s *experienceService) Scroll(ctx context.Context, cmd ScrollCommand) (ScrollResult, error) {
	sess, err := s.lookup(cmd.OwnerID, cmd.ID)
	if err != nil {
		return ScrollResult{}, err
	}
	obs := sess.sequencer.ObserveLayout(cmd.Progress, cmd.Measured)
	t := cmd.Time
	if t <= 0 {
		t = s.now().Sub(sess.startedAt).Seconds()
	}
	if obs.Revealed {
		s.logger(ctx, "experience.overlay_revealed", map[string]any{
			"experienceId": sess.id,
			"stage":        float64(obs.Stage),
		})
	}
	return ScrollResult{Narrative: obs, Frame: sess.composer.Frame(obs.Stage, t)}, nil
}

func (s *experienceService) Viewer(ctx context.Context, cmd ViewerCommand) (ViewerView, error) {
	sess, err := s.lookup(cmd.OwnerID, cmd.ID)
	if err != nil {
		return ViewerView{}, err
	}
	var state interactive.Viewer
	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case ViewerDown:
		state = sess.viewer.Down()
	case ViewerMove:
		state = sess.viewer.Move(cmd.DeltaX)
	case ViewerUp:
		state = sess.viewer.Up()
	case ViewerToggle:
		state = sess.viewer.Toggle()
	default:
		return ViewerView{}, fmt.Errorf("%w: unknown viewer action %q", ErrExperienceInvalidInput, cmd.Action)
	}
	return s.viewerView(ctx, state), nil
}

func (s *experienceService) ViewerState(ctx context.Context, ownerID, id string) (ViewerView, error) {
	sess, err := s.lookup(ownerID, id)
	if err != nil {
		return ViewerView{}, err
	}
	return s.viewerView(ctx, sess.viewer.State()), nil
}

func (s *experienceService) Mixing(ctx context.Context, cmd MixingCommand) (MixingView, error) {
	sess, err := s.lookup(cmd.OwnerID, cmd.ID)
	if err != nil {
		return MixingView{}, err
	}
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	switch action {
	case MixingDragStart, MixingDrop, MixingInteract, MixingStop:
	default:
		return MixingView{}, fmt.Errorf("%w: unknown mixing action %q", ErrExperienceInvalidInput, cmd.Action)
	}
	if sess.sequencer.Reveals() == 0 {
		return MixingView{}, ErrExperienceLocked
	}
	var game interactive.MixingGame
	switch action {
	case MixingDragStart:
		game, err = sess.mixing.DragStart(cmd.Ingredient)
	case MixingDrop:
		game, err = sess.mixing.Drop(cmd.Ingredient, cmd.Point, cmd.Receptacle)
	case MixingInteract:
		game = sess.mixing.Interact(true)
	case MixingStop:
		game = sess.mixing.Interact(false)
	}
	if err != nil {
		return MixingView{}, fmt.Errorf("%w: %w", ErrExperienceInvalidInput, err)
	}
	return mixingView(game), nil
}

func (s *experienceService) MixingState(_ context.Context, ownerID, id string, withDots bool) (MixingView, error) {
	sess, err := s.lookup(ownerID, id)
	if err != nil {
		return MixingView{}, err
	}
	view := mixingView(sess.mixing.State())
	if withDots {
		view.Dots = ingredientDots(sess.seed)
	}
	return view, nil
}

func (s *experienceService) Hero(_ context.Context, cmd HeroCommand) (HeroView, error) {
	in := animation.HeroInput{T: cmd.T, Pointer: cmd.Pointer, Dragging: cmd.Dragging, Width: cmd.Width}
	if strings.TrimSpace(cmd.SessionID) == "" {
		globe := &animation.Globe{}
		return HeroView{
			Logo:  animation.NewHeroLogo().Step(in),
			Globe: globe.Step(cmd.Pointer, cmd.Dragging),
		}, nil
	}
	sess, err := s.lookup(cmd.OwnerID, cmd.SessionID)
	if err != nil {
		return HeroView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return HeroView{
		Logo:  sess.hero.Step(in),
		Globe: sess.globe.Step(cmd.Pointer, cmd.Dragging),
	}, nil
}

func (s *experienceService) Showcase(_ context.Context, cmd ShowcaseCommand) (ShowcaseView, error) {
	model := strings.ToLower(strings.TrimSpace(cmd.Model))
	if cmd.Width < 0 || cmd.FixedHeight < 0 {
		return ShowcaseView{}, fmt.Errorf("%w: width and height must not be negative", ErrExperienceInvalidInput)
	}
	size := animation.ShowcaseSize(cmd.Width, cmd.FixedHeight)
	view := ShowcaseView{Model: model, Size: size}
	switch model {
	case ShowcaseOlive:
		view.Camera = animation.ShowcaseCamera(cmd.Width)
		view.Transform = animation.OliveShowcase(cmd.T, size.Scale)
	case ShowcaseSeaweed:
		view.Camera = animation.ShowcaseCamera(cmd.Width)
		view.Transform = animation.SeaweedShowcase(cmd.T, size.Scale)
	case ShowcaseFiber:
		view.Camera = animation.FiberCamera(cmd.Width)
		view.Transform = animation.FiberShowcase(cmd.T, size.Scale)
		if cmd.Geometry {
			ball := animation.NewWoolBall(cmd.Seed)
			view.WoolBall = &ball
		}
	default:
		return ShowcaseView{}, fmt.Errorf("%w: unknown showcase %q", ErrExperienceInvalidInput, cmd.Model)
	}
	return view, nil
}

// Reap closes sessions idle for longer than the configured TTL.
func (s *experienceService) Reap(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	var idle []*experienceSession
	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.seen()) >= s.idleTTL {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.close()
	}
	if len(idle) > 0 {
		s.logger(context.Background(), "experience.reaped", map[string]any{"count": len(idle)})
	}
	return len(idle)
}

// Close ends every session. Later calls fail with ErrExperienceClosed.
func (s *experienceService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = map[string]*experienceSession{}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// lookup reports another visitor's session as missing.
func (s *experienceService) lookup(ownerID, id string) (*experienceSession, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrExperienceClosed
	}
	sess, ok := s.sessions[id]
	if !ok || sess.owner != ownerID {
		return nil, ErrExperienceNotFound
	}
	sess.touch(s.now())
	return sess, nil
}

// completeMixing runs on the mixing runtime goroutine once the settle delay has
// elapsed. It must not call back into the runtime.
func (s *experienceService) completeMixing(sess *experienceSession) {
	obs := sess.sequencer.Complete()

	ctx, cancel := context.WithTimeout(context.Background(), completionPublishTimeout)
	defer cancel()
	mixingCompleted.Add(ctx, 1)

	event := jobs.Event{
		ID:         s.newID(),
		Type:       jobs.EventMixingCompleted,
		OccurredAt: s.now(),
		SessionID:  sess.owner,
		Payload: map[string]any{
			"experienceId": sess.id,
			"stage":        float64(obs.Stage),
		},
	}
	if _, err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "experience.publish_failed", map[string]any{
			"experienceId": sess.id,
			"error":        err.Error(),
		})
		return
	}
	s.logger(ctx, "experience.mixing_completed", map[string]any{"experienceId": sess.id})
}

func (s *experienceService) view(ctx context.Context, sess *experienceSession) ExperienceView {
	return ExperienceView{
		ID:        sess.id,
		StartedAt: sess.startedAt,
		Narrative: sess.sequencer.State(),
		Viewer:    s.viewerView(ctx, sess.viewer.State()),
		Mixing:    mixingView(sess.mixing.State()),
		Sections:  narrative.Sections(),
	}
}

func (s *experienceService) viewerView(ctx context.Context, state interactive.Viewer) ViewerView {
	return ViewerView{Viewer: state, FrameURL: s.assetURL(ctx, interactive.FramePath(state.Frame))}
}

func mixingView(game interactive.MixingGame) MixingView {
	heading, hint := game.Instructions()
	return MixingView{
		Game:    game,
		Phase:   game.Phase(),
		Percent: game.Percent(),
		Color:   game.LiquidColor(),
		Heading: heading,
		Hint:    hint,
	}
}

// ingredientDots returns the dot texture of every ingredient. The same seed
// always yields the same textures.
func ingredientDots(seed uint64) map[interactive.Ingredient][]interactive.Dot {
	dots := make(map[interactive.Ingredient][]interactive.Dot, len(interactive.Ingredients))
	for _, ing := range interactive.Ingredients {
		dots[ing] = interactive.Dots(ing, interactive.DefaultDotCount, seed)
	}
	return dots
}

func (e *experienceSession) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *experienceSession) seen() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

func (e *experienceSession) close() {
	e.viewer.Close()
	e.mixing.Close()
}
