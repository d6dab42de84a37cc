package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/atinyakov/PartyBooth/internal/clock"
	"go.uber.org/zap"
)

var (
	// ErrCameraUnavailable is reported when the source could not be
	// acquired, even after the retry.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrCaptureFailed is reported when a frame could not be grabbed or
	// encoded. No frames are delivered for the session.
	ErrCaptureFailed = errors.New("capture failed")
)

// Event is emitted for every state the sequencer enters. Frames is set
// only on the Done event and Err only on the Failed event.
type Event struct {
	Phase  Phase
	Count  int
	Index  int
	Frames []Frame
	Err    error
}

// Sequencer runs capture sessions against one Source. At most one
// session runs at a time.
type Sequencer struct {
	src        Source
	clock      clock.Clock
	countdown  int
	tick       time.Duration
	pause      time.Duration
	retryDelay time.Duration
	encode     Encoder
	log        *zap.Logger

	running atomic.Bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock sets the clock driving countdown ticks and pauses.
func WithClock(c clock.Clock) Option { return func(s *Sequencer) { s.clock = c } }

// WithCountdown sets the first countdown value. Values below zero
// mean no countdown.
func WithCountdown(n int) Option { return func(s *Sequencer) { s.countdown = max(n, 0) } }

// WithTick sets the duration of one countdown step.
func WithTick(d time.Duration) Option { return func(s *Sequencer) { s.tick = d } }

// WithPause sets the delay between two shots.
func WithPause(d time.Duration) Option { return func(s *Sequencer) { s.pause = d } }

// WithRetryDelay sets the wait before the single source re-acquire.
func WithRetryDelay(d time.Duration) Option { return func(s *Sequencer) { s.retryDelay = d } }

// WithEncoder replaces the JPEG encoder.
func WithEncoder(e Encoder) Option { return func(s *Sequencer) { s.encode = e } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Sequencer) { s.log = l } }

// NewSequencer returns a Sequencer with a 5 second countdown, one
// second pauses and JPEG encoding.
func NewSequencer(src Source, opts ...Option) *Sequencer {
	s := &Sequencer{
		src:        src,
		clock:      clock.Real(),
		countdown:  5,
		tick:       time.Second,
		pause:      time.Second,
		retryDelay: 500 * time.Millisecond,
		encode:     EncodeJPEG,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a session is in progress.
func (s *Sequencer) Running() bool {
	return s.running.Load()
}

// Start begins a capture session and returns its event stream. If a
// session is already running it returns (nil, false) and changes
// nothing. The channel is closed after the Done or Failed event.
// Cancelling ctx abandons the session; no capture happens afterwards.
func (s *Sequencer) Start(ctx context.Context) (<-chan Event, bool) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, false
	}
	// room for every event of a full run so the sequencer never blocks
	// on a caller that walked away
	events := make(chan Event, s.countdown+2*ShotCount+1)
	go s.run(ctx, events)
	return events, true
}

func (s *Sequencer) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	finish := func(ev Event) {
		s.running.Store(false)
		events <- ev
	}
	fail := func(err error) {
		st := Fail(err)
		s.log.Warn("capture session failed", zap.Error(err))
		finish(Event{Phase: st.Phase, Err: st.Err})
	}

	if err := s.acquire(ctx); err != nil {
		fail(err)
		return
	}

	frames := make([]Frame, 0, ShotCount)
	state := State{Phase: Idle}
	for {
		state = Transition(state, s.countdown)

		switch state.Phase {
		case CountingDown:
			events <- Event{Phase: CountingDown, Count: state.Count}
			if err := s.wait(ctx, s.tick); err != nil {
				fail(err)
				return
			}
		case Capturing:
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			events <- Event{Phase: Capturing, Index: state.Index}
			frame, err := s.grab(ctx, state.Index)
			if err != nil {
				fail(err)
				return
			}
			frames = append(frames, frame)
		case Pausing:
			events <- Event{Phase: Pausing, Index: state.Index}
			if err := s.wait(ctx, s.pause); err != nil {
				fail(err)
				return
			}
		case Done:
			s.log.Info("capture session done", zap.Int("frames", len(frames)))
			finish(Event{Phase: Done, Frames: frames})
			return
		default:
			fail(fmt.Errorf("unexpected phase %s", state.Phase))
			return
		}
	}
}

// acquire readies the source, retrying once after retryDelay.
func (s *Sequencer) acquire(ctx context.Context) error {
	err := s.src.Acquire(ctx)
	if err == nil {
		return nil
	}
	s.log.Warn("camera not ready, retrying", zap.Error(err), zap.Duration("delay", s.retryDelay))

	if werr := s.wait(ctx, s.retryDelay); werr != nil {
		return werr
	}
	if err := s.src.Acquire(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	return nil
}

func (s *Sequencer) grab(ctx context.Context, index int) (Frame, error) {
	img, err := s.src.Frame(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: shot %d: %w", ErrCaptureFailed, index, err)
	}
	if img == nil {
		return Frame{}, fmt.Errorf("%w: shot %d: %w", ErrCaptureFailed, index, ErrNoSignal)
	}

	var buf bytes.Buffer
	if err := s.encode(&buf, img); err != nil {
		return Frame{}, fmt.Errorf("%w: shot %d: encode: %w", ErrCaptureFailed, index, err)
	}
	return Frame{Index: index, ContentType: ContentTypeJPEG, Quality: JPEGQuality, Data: buf.Bytes()}, nil
}

// wait blocks for d or until ctx is done. The timer is stopped when
// ctx wins.
func (s *Sequencer) wait(ctx context.Context, d time.Duration) error {
	t := s.clock.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
