// Package session owns the per-page viewing session state machine.
//
// One Tracker exists per tracked page context. It polls a media probe on
// a fixed interval, funnels DOM-mutation and visibility signals into the
// same tick transition, infers session boundaries from a title+duration
// fingerprint, and emits full-draft update events after every tick. The
// aggregator is responsible for idempotent merging; the tracker never
// suppresses sends.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/delivery"
	"github.com/example/viewtrack/internal/record"
	"github.com/example/viewtrack/internal/titles"
)

// ErrEmptyRating is returned when a rating submission carries no rating,
// genre or comment.
var ErrEmptyRating = errors.New("session: rating submission is empty")

// Config tunes the state machine. Zero values fall back to the reference
// behaviour: 5s polls, 30s seek threshold, 90% completion.
type Config struct {
	PollInterval    time.Duration
	SeekThreshold   float64 // seconds of position jump treated as a session break
	CompletionRatio float64
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.SeekThreshold <= 0 {
		c.SeekThreshold = 30
	}
	if c.CompletionRatio <= 0 {
		c.CompletionRatio = 0.9
	}
}

// Tracker is the viewing session state machine for one page context.
type Tracker struct {
	cfg      Config
	svc      record.Service
	media    MediaProbe
	doc      DocumentSource
	prompter RatingPrompter
	sender   *delivery.Sender
	log      *zap.Logger

	// ContextID identifies this tracking context in context-closed signals.
	ContextID string

	mu          sync.Mutex
	draft       record.ViewingRecord
	fingerprint string
	ratingShown bool
	running     bool
	stopLoop    context.CancelFunc

	mutations chan struct{}

	// Outbound events are dispatched off the tick path so in-flight
	// retries survive Stop, while per-tracker ordering is preserved.
	// The queue channel is never closed; quit tells emit and dispatch
	// the tracker is done, so late callers drop instead of panicking.
	outbound  chan record.Update
	quit      chan struct{}
	closeOnce sync.Once
	drained   chan struct{}
}

func NewTracker(cfg Config, media MediaProbe, doc DocumentSource, prompter RatingPrompter, sender *delivery.Sender, log *zap.Logger) *Tracker {
	cfg.setDefaults()
	if prompter == nil {
		prompter = NopPrompter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		cfg:       cfg,
		svc:       titles.Detect(doc.Host()),
		media:     media,
		doc:       doc,
		prompter:  prompter,
		sender:    sender,
		log:       log,
		ContextID: fmt.Sprintf("ctx-%d", time.Now().UnixNano()),
		mutations: make(chan struct{}, 1),
		outbound:  make(chan record.Update, 64),
		quit:      make(chan struct{}),
		drained:   make(chan struct{}),
	}
	t.resetDraft()
	go t.dispatch()
	return t
}

// Service reports the detected streaming service for this page.
func (t *Tracker) Service() record.Service { return t.svc }

// Start begins polling. Safe to call repeatedly; a running tracker is
// left alone. Intended for navigation and visibility-resume.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.running = true
	t.stopLoop = cancel
	t.mu.Unlock()

	t.Tick()
	go t.loop(loopCtx)
}

// Stop cancels polling and, if a session is in progress, emits one final
// interrupted update. Pending deliveries are not cancelled; they finish
// or exhaust their retry budget asynchronously.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.stopLoop
	t.stopLoop = nil
	t.flushInterruptedLocked()
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close stops tracking and shuts down the dispatch queue, waiting
// briefly for queued deliveries to drain.
func (t *Tracker) Close() {
	t.Stop()
	t.closeOnce.Do(func() { close(t.quit) })
	select {
	case <-t.drained:
	case <-time.After(5 * time.Second):
	}
}

// NotifyMutation schedules an out-of-band tick, coalescing bursts.
func (t *Tracker) NotifyMutation() {
	select {
	case t.mutations <- struct{}{}:
	default:
	}
}

// SetTitles updates the current draft's title fields only. Used for
// click and media-metadata events; never triggers a flush by itself.
// Empty arguments leave the corresponding field unchanged.
func (t *Tracker) SetTitles(main, episode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if main == "" {
		return
	}
	t.draft.MainTitle = main
	t.draft.EpisodeTitle = episode
	if t.fingerprint != "" {
		// A title correction is not a new video. Re-key the identity so the
		// next tick does not misread it as a session boundary.
		t.fingerprint = fingerprint(main, episode, t.draft.TotalDuration)
	}
}

// ForceRatingPrompt triggers the rating flow for the current session
// regardless of the completion threshold.
func (t *Tracker) ForceRatingPrompt() {
	t.mu.Lock()
	main, episode := t.draft.MainTitle, t.draft.EpisodeTitle
	t.mu.Unlock()
	t.prompter.PromptRating(main, episode)
}

// SubmitRating records the user's rating for the current session and
// emits an updateRating event. rating 0, empty genre and empty comment
// mean "field not provided"; at least one must be present.
func (t *Tracker) SubmitRating(rating int, genre record.Genre, comment, titleOverride string) error {
	if rating == 0 && genre == "" && comment == "" {
		return ErrEmptyRating
	}
	if rating != 0 && (rating < 1 || rating > 5) {
		return fmt.Errorf("session: rating %d out of range", rating)
	}

	t.mu.Lock()
	if t.draft.MainTitle == "" && titleOverride != "" {
		t.draft.MainTitle = titleOverride
	}
	if genre != "" {
		t.draft.Genre = genre
	}
	hasRating := true
	t.draft.HasRating = &hasRating

	data := t.draft
	if rating != 0 {
		data.Rating = &rating
	}
	if comment != "" {
		c := comment
		data.Comment = &c
	}
	t.ratingShown = true
	t.mu.Unlock()

	t.emit(record.Update{Action: record.ActionUpdateRating, Data: data})
	return nil
}

func (t *Tracker) loop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		case <-t.mutations:
			t.Tick()
		}
	}
}

// Tick runs one state-machine transition. Any panic is recovered and
// logged; availability of the polling loop takes priority over strict
// correctness of a single tick.
func (t *Tracker) Tick() {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tick panic recovered", zap.Any("panic", r))
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	sample, ok := t.media.Sample()
	if !ok {
		// Media element gone while a session was underway.
		t.flushInterruptedLocked()
		return
	}

	pos, dur := sample.Position, sample.Duration

	// Session boundary: the identity fingerprint is built from the title
	// state plus the rounded duration. A change with a prior identity in
	// place means a new video started; flush the old draft first.
	fp := fingerprint(t.draft.MainTitle, t.draft.EpisodeTitle, dur)
	if t.fingerprint != "" && fp != t.fingerprint {
		t.flushCompletedLocked(t.draft)
		t.resetDraft()
	} else if t.fingerprint != "" && abs(pos-t.draft.LastPosition) > t.cfg.SeekThreshold {
		// Large jump within the same video: close out the segment, then
		// credit at most one poll interval of the gap.
		t.flushCompletedLocked(t.draft)
		if delta := pos - t.draft.LastPosition; delta > 0 {
			t.draft.WatchedDuration += min(delta, t.cfg.PollInterval.Seconds())
		}
	}

	t.draft.Service = t.svc
	t.draft.TotalDuration = dur
	t.draft.LastPosition = pos
	t.draft.WatchedDuration = max(t.draft.WatchedDuration, pos)
	if dur > 0 && t.draft.WatchedDuration > dur {
		t.draft.WatchedDuration = dur
	}

	if t.draft.MainTitle == "" {
		main, episode := titles.Resolve(t.svc, t.doc.Root())
		t.draft.MainTitle = main
		t.draft.EpisodeTitle = episode
	}

	switch {
	case dur > 0 && pos/dur >= t.cfg.CompletionRatio && !t.ratingShown:
		t.draft.Status = record.StatusCompleted
		t.ratingShown = true
		t.prompter.PromptRating(t.draft.MainTitle, t.draft.EpisodeTitle)
	case pos > 0:
		t.draft.Status = record.StatusInProgress
	default:
		t.draft.Status = record.StatusUnknown
	}

	t.fingerprint = fingerprint(t.draft.MainTitle, t.draft.EpisodeTitle, dur)
	t.emit(record.Update{Action: record.ActionUpdateVideoData, Data: t.draft})
}

// flushCompletedLocked emits a closing update for the given draft tagged
// completed. Caller holds the lock.
func (t *Tracker) flushCompletedLocked(flushed record.ViewingRecord) {
	flushed.Status = record.StatusCompleted
	t.emit(record.Update{Action: record.ActionUpdateVideoData, Data: flushed})
}

// flushInterruptedLocked emits one interrupted update if a session is in
// progress, then resets to idle. Caller holds the lock.
func (t *Tracker) flushInterruptedLocked() {
	if t.draft.Status != record.StatusInProgress {
		return
	}
	t.draft.Status = record.StatusInterrupted
	t.emit(record.Update{Action: record.ActionUpdateVideoData, Data: t.draft})
	t.resetDraft()
}

func (t *Tracker) resetDraft() {
	t.draft = record.ViewingRecord{
		Service: t.svc,
		Status:  record.StatusNotStarted,
	}
	t.fingerprint = ""
	t.ratingShown = false
}

func (t *Tracker) emit(u record.Update) {
	select {
	case <-t.quit:
		t.log.Warn("tracker closed, dropping update", zap.String("action", u.Action))
		return
	default:
	}
	select {
	case t.outbound <- u:
	default:
		t.log.Warn("outbound queue full, dropping update", zap.String("action", u.Action))
	}
}

// dispatch serialises deliveries so flush ordering is preserved. It uses
// a background context: stopping the tracker does not cancel in-flight
// retries. On quit it drains whatever is still queued, then exits.
func (t *Tracker) dispatch() {
	defer close(t.drained)
	for {
		select {
		case u := <-t.outbound:
			t.deliver(u)
		case <-t.quit:
			for {
				select {
				case u := <-t.outbound:
					t.deliver(u)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracker) deliver(u record.Update) {
	if err := t.sender.Send(context.Background(), u); err != nil {
		t.log.Warn("update delivery failed", zap.String("action", u.Action), zap.Error(err))
	}
}

func fingerprint(main, episode string, duration float64) string {
	return main + "|" + episode + "|" + strconv.FormatInt(int64(duration+0.5), 10)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
