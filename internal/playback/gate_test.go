package playback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/catalog"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
	"github.com/hualingluo/InteractiveMovie/internal/repo/memory"
	"github.com/hualingluo/InteractiveMovie/internal/services/entitlements"
	"github.com/hualingluo/InteractiveMovie/internal/services/unlock"
)

const gateStoryJSON = `{
  "startNodeId": "intro",
  "nodes": {
    "intro": {
      "title": "Intro",
      "mediaType": "image",
      "options": [
        {"id": "o1", "label": "Left", "targetId": "left"},
        {"id": "o2", "label": "Right", "targetId": "right", "isDefault": true}
      ],
      "interactiveSettings": {"decisionTriggerTime": 8}
    },
    "left": {"title": "Left", "mediaType": "image", "options": []},
    "right": {"title": "Right", "mediaType": "image", "options": []},
    "nodefault": {
      "title": "No default",
      "mediaType": "image",
      "options": [
        {"id": "a", "label": "A", "targetId": "left"},
        {"id": "b", "label": "B", "targetId": "right"}
      ]
    },
    "dangling": {
      "title": "Dangling",
      "mediaType": "image",
      "options": [{"id": "x", "label": "Nowhere", "targetId": "missing"}]
    },
    "clip": {
      "title": "Clip",
      "mediaType": "video",
      "options": [{"id": "c1", "label": "Go", "targetId": "right"}]
    },
    "vault": {
      "title": "Vault",
      "mediaType": "video",
      "options": [],
      "monetization": {"type": "paid", "price": 300}
    }
  }
}`

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu         sync.Mutex
	now        time.Duration
	timers     []*fakeTimer
	ignoreStop bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return &fakeTimerHandle{clock: c, timer: t}
}

type fakeTimerHandle struct {
	clock *fakeClock
	timer *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	if h.timer.fired || h.timer.stopped {
		return false
	}
	if !h.clock.ignoreStop {
		h.timer.stopped = true
	}
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		due := make([]*fakeTimer, 0)
		for _, t := range c.timers {
			if !t.fired && !t.stopped && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type accessStub struct {
	mu     sync.Mutex
	locked map[string]bool
	err    error
}

func (a *accessStub) CheckAccess(_ context.Context, _ string, contentID string) (unlock.Access, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return unlock.Access{}, a.err
	}
	if a.locked[contentID] {
		return unlock.Access{Allowed: false, Reason: "unlock with 300 coins, balance 1000"}, nil
	}
	return unlock.Access{Allowed: true, Reason: "free content"}, nil
}

type unlockerStub struct {
	access *accessStub
	err    error
	calls  int
}

func (u *unlockerStub) UnlockWithCoins(_ context.Context, userID, contentID string) (model.UnlockResult, error) {
	u.calls++
	if u.err != nil {
		return model.UnlockResult{}, u.err
	}
	u.access.mu.Lock()
	delete(u.access.locked, contentID)
	u.access.mu.Unlock()
	return model.UnlockResult{UserID: userID, ContentID: contentID, Balance: 700, Spent: 300}, nil
}

func (u *unlockerStub) UnlockWithAd(_ context.Context, in unlock.AdUnlockInput) (model.UnlockResult, error) {
	u.calls++
	if u.err != nil {
		return model.UnlockResult{}, u.err
	}
	return model.UnlockResult{UserID: in.UserID, ContentID: in.ContentID, Balance: 1000}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

type gateFixture struct {
	gate     *Gate
	clock    *fakeClock
	access   *accessStub
	unlocker *unlockerStub
	events   *recorder
}

func newGateFixture(t *testing.T, locked ...string) gateFixture {
	t.Helper()
	story, err := catalog.ParseStory([]byte(gateStoryJSON))
	if err != nil {
		t.Fatalf("parse story: %v", err)
	}
	access := &accessStub{locked: map[string]bool{}}
	for _, id := range locked {
		access.locked[id] = true
	}
	unlocker := &unlockerStub{access: access}
	clock := &fakeClock{}
	events := &recorder{}
	gate := NewGate(Dependencies{Graph: story, Access: access, Unlocker: unlocker, Clock: clock})
	gate.Subscribe(events.observe)
	t.Cleanup(gate.Close)
	return gateFixture{gate: gate, clock: clock, access: access, unlocker: unlocker, events: events}
}

func TestStaticNodeRevealsOptionsAndTimesOutToDefault(t *testing.T) {
	f := newGateFixture(t)
	if err := f.gate.Start("u1", "intro"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.gate.State() != StatePlaying {
		t.Fatalf("expected playing, got %s", f.gate.State())
	}

	f.clock.Advance(StaticRevealDelay - time.Millisecond)
	if f.gate.State() != StatePlaying {
		t.Fatalf("options must not open before the reveal delay")
	}
	f.clock.Advance(time.Millisecond)
	if f.gate.State() != StateDecisionWindow {
		t.Fatalf("expected decision window, got %s", f.gate.State())
	}
	if ev := f.events.last(); ev.Countdown != 8*time.Second || len(ev.Options) != 2 {
		t.Fatalf("unexpected decision event: %+v", ev)
	}

	f.clock.Advance(8 * time.Second)
	if f.gate.CurrentNode() != "right" {
		t.Fatalf("timeout must follow the default option, at %s", f.gate.CurrentNode())
	}
}

func TestTimeoutWithoutDefaultPicksFirstOption(t *testing.T) {
	f := newGateFixture(t)
	if err := f.gate.Start("u1", "nodefault"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(StaticRevealDelay)
	if ev := f.events.last(); ev.Countdown != 5*time.Second {
		t.Fatalf("expected default 5s countdown, got %s", ev.Countdown)
	}
	f.clock.Advance(5 * time.Second)
	if f.gate.CurrentNode() != "left" {
		t.Fatalf("expected first option target, at %s", f.gate.CurrentNode())
	}
}

func TestSelectCancelsCountdown(t *testing.T) {
	f := newGateFixture(t)
	if err := f.gate.Select("o1"); !errors.Is(err, ErrNotInDecisionWindow) {
		t.Fatalf("expected not in decision window, got %v", err)
	}
	if err := f.gate.Start("u1", "intro"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(StaticRevealDelay)

	if err := f.gate.Select("nope"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected unknown option, got %v", err)
	}
	if err := f.gate.Select("o1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if f.gate.CurrentNode() != "left" {
		t.Fatalf("expected left, at %s", f.gate.CurrentNode())
	}

	f.clock.Advance(time.Minute)
	if n := f.events.count(EventTransition); n != 1 {
		t.Fatalf("countdown must not fire after a selection, transitions %d", n)
	}
	if f.gate.State() != StateEnded {
		t.Fatalf("leaf node should end after reveal, got %s", f.gate.State())
	}
}

func TestMissingTargetEnds(t *testing.T) {
	f := newGateFixture(t)
	if err := f.gate.Start("u1", "dangling"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(StaticRevealDelay)
	if err := f.gate.Select("x"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if f.gate.State() != StateEnded {
		t.Fatalf("expected ended, got %s", f.gate.State())
	}
	if f.clock.pending() != 0 {
		t.Fatalf("ended player must not keep timers")
	}
}

func TestVideoOpensOptionsNearTheEnd(t *testing.T) {
	f := newGateFixture(t)
	if err := f.gate.Start("u1", "clip"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(time.Minute)
	if f.gate.State() != StatePlaying {
		t.Fatalf("video must wait for progress, got %s", f.gate.State())
	}

	_ = f.gate.ReportProgress(10*time.Second, 30*time.Second)
	if f.gate.State() != StatePlaying {
		t.Fatalf("too early for options, got %s", f.gate.State())
	}
	_ = f.gate.ReportProgress(25*time.Second, 30*time.Second)
	if f.gate.State() != StateDecisionWindow {
		t.Fatalf("expected decision window, got %s", f.gate.State())
	}
	f.clock.Advance(5 * time.Second)
	if f.gate.CurrentNode() != "right" {
		t.Fatalf("expected auto advance to right, at %s", f.gate.CurrentNode())
	}
}

func TestLockedNodeRunsNoTimersUntilUnlocked(t *testing.T) {
	f := newGateFixture(t, "vault")
	if err := f.gate.Start("u1", "vault"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.gate.State() != StateLocked {
		t.Fatalf("expected locked, got %s", f.gate.State())
	}
	if ev := f.events.last(); ev.Type != EventLocked || ev.Access == nil {
		t.Fatalf("expected locked event with access, got %+v", ev)
	}
	if f.clock.pending() != 0 {
		t.Fatalf("no timer may run while locked")
	}
	if err := f.gate.Select("anything"); !errors.Is(err, ErrNotInDecisionWindow) {
		t.Fatalf("expected not in decision window, got %v", err)
	}

	f.unlocker.err = failure.New(failure.CodeInsufficientFunds, "insufficient coins, balance 100")
	if _, err := f.gate.UnlockWithCoins(); !errors.Is(err, failure.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if f.gate.State() != StateLocked {
		t.Fatalf("failed unlock must stay locked, got %s", f.gate.State())
	}

	f.unlocker.err = nil
	result, err := f.gate.UnlockWithCoins()
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if result.Balance != 700 || f.gate.State() != StatePlaying {
		t.Fatalf("unexpected unlock outcome %+v state %s", result, f.gate.State())
	}

	_ = f.gate.ReportProgress(40*time.Second, 40*time.Second)
	if f.gate.State() != StateEnded {
		t.Fatalf("video without options ends at the end, got %s", f.gate.State())
	}
	if _, err := f.gate.UnlockWithCoins(); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected not locked, got %v", err)
	}
}

func TestGateEmbedsCoordinatorInProcess(t *testing.T) {
	story, err := catalog.ParseStory([]byte(gateStoryJSON))
	if err != nil {
		t.Fatalf("parse story: %v", err)
	}
	coordinator := unlock.NewCoordinator(unlock.Dependencies{
		Catalog:      story,
		Entitlements: entitlements.NewService(memory.NewEntitlementRepo(1000), nil),
	})
	clock := &fakeClock{}
	gate := NewGate(Dependencies{Graph: story, Access: coordinator, Unlocker: coordinator, Clock: clock})
	defer gate.Close()

	if err := gate.Start("u1", "vault"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if gate.State() != StateLocked {
		t.Fatalf("paid node must start locked, got %s", gate.State())
	}

	result, err := gate.UnlockWithCoins()
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if result.Balance != 700 || gate.State() != StatePlaying {
		t.Fatalf("unexpected unlock outcome %+v state %s", result, gate.State())
	}

	access, err := coordinator.CheckAccess(context.Background(), "u1", "vault")
	if err != nil || !access.Allowed {
		t.Fatalf("unlock through the gate must persist: %+v %v", access, err)
	}
}

func TestAccessErrorLeavesNodeLocked(t *testing.T) {
	f := newGateFixture(t)
	f.access.err = failure.Storage(errors.New("db down"))
	if err := f.gate.Start("u1", "intro"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.gate.State() != StateLocked || f.events.last().Type != EventError {
		t.Fatalf("expected locked with error event, got %s %+v", f.gate.State(), f.events.last())
	}
	if f.clock.pending() != 0 {
		t.Fatalf("no timer may run after an access failure")
	}
}

func TestCloseStopsTimers(t *testing.T) {
	f := newGateFixture(t)
	if err := f.gate.Start("u1", "intro"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(StaticRevealDelay)

	f.gate.Close()
	before := len(f.events.events)
	f.clock.Advance(time.Minute)
	if len(f.events.events) != before {
		t.Fatalf("no event may fire after close")
	}
	if err := f.gate.Select("o1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if err := f.gate.Start("u1", "intro"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	f.gate.Close()
}

func TestCloseWinsOverTimerThatAlreadyFired(t *testing.T) {
	f := newGateFixture(t)
	f.clock.ignoreStop = true
	if err := f.gate.Start("u1", "intro"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.gate.Close()

	before := len(f.events.events)
	f.clock.Advance(time.Minute)
	if len(f.events.events) != before {
		t.Fatalf("late callback acted after close")
	}
	if f.gate.State() != StatePlaying {
		t.Fatalf("state must be frozen at close, got %s", f.gate.State())
	}
}
