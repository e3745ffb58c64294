// Package playback is the client-side gate a player embeds to walk a viewer
// through the story graph. It is not mounted on the HTTP API; a host process
// (a desktop or mobile shell, or a test harness) builds a Gate over the story
// catalog and an unlock Coordinator, or over remote clients with the same
// method sets, and feeds it selections and video progress.
//
// For each node the gate checks access and holds locked content until it is
// unlocked. It then reveals the options, runs the decision countdown and
// follows the chosen edge until the story ends or the player is closed.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/catalog"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
	"github.com/hualingluo/InteractiveMovie/internal/services/unlock"
)

const StaticRevealDelay = 3 * time.Second

type State string

const (
	StateIdle           State = "idle"
	StateLocked         State = "locked"
	StateUnlocking      State = "unlocking"
	StatePlaying        State = "playing"
	StateDecisionWindow State = "decision_window"
	StateTransitioning  State = "transitioning"
	StateEnded          State = "ended"
)

var (
	ErrClosed              = errors.New("player is closed")
	ErrNotLocked           = errors.New("node is not locked")
	ErrNotInDecisionWindow = errors.New("options are not open")
	ErrUnknownOption       = errors.New("unknown option")
	ErrNoUnlocker          = errors.New("unlocking is not available")
)

type Graph interface {
	Node(id string) (catalog.Node, bool)
}

// The in-process wiring a host uses when it embeds the engine directly.
var (
	_ Graph         = (*catalog.Story)(nil)
	_ AccessChecker = (*unlock.Coordinator)(nil)
	_ Unlocker      = (*unlock.Coordinator)(nil)
)

type AccessChecker interface {
	CheckAccess(ctx context.Context, userID, contentID string) (unlock.Access, error)
}

type Unlocker interface {
	UnlockWithCoins(ctx context.Context, userID, contentID string) (model.UnlockResult, error)
	UnlockWithAd(ctx context.Context, in unlock.AdUnlockInput) (model.UnlockResult, error)
}

type EventType string

const (
	EventLocked         EventType = "locked"
	EventPlaying        EventType = "playing"
	EventDecisionWindow EventType = "decision_window"
	EventTransition     EventType = "transition"
	EventEnded          EventType = "ended"
	EventError          EventType = "error"
)

type Event struct {
	Type      EventType
	NodeID    string
	State     State
	Options   []catalog.Option
	Countdown time.Duration
	Option    *catalog.Option
	Access    *unlock.Access
	Reason    string
	Err       error
}

// Observer receives events synchronously while the gate holds its lock, so it
// must not call back into the Gate on the same goroutine.
type Observer func(Event)

type Dependencies struct {
	Graph    Graph
	Access   AccessChecker
	Unlocker Unlocker
	Clock    Clock
	Logger   *zap.Logger

	// StaticRevealDelay overrides how long non-video nodes play before the
	// options appear.
	StaticRevealDelay time.Duration
}

type Gate struct {
	graph       Graph
	access      AccessChecker
	unlocker    Unlocker
	clock       Clock
	logger      *zap.Logger
	revealDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	userID    string
	state     State
	node      catalog.Node
	timer     Timer
	timerSeq  uint64
	closed    bool
	observers []Observer
}

func NewGate(deps Dependencies) *Gate {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = realClock{}
	}
	delay := deps.StaticRevealDelay
	if delay <= 0 {
		delay = StaticRevealDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		graph:       deps.Graph,
		access:      deps.Access,
		unlocker:    deps.Unlocker,
		clock:       clock,
		logger:      logger,
		revealDelay: delay,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
	}
}

func (g *Gate) Subscribe(observer Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, observer)
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) CurrentNode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.node.ID
}

// Start enters nodeID for userID. It may be called again to restart from
// another node, including after the story ended.
func (g *Gate) Start(userID, nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.userID = userID
	g.enter(nodeID)
	return nil
}

// Select picks an option while the decision window is open and follows it
// immediately.
func (g *Gate) Select(optionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if g.state != StateDecisionWindow {
		return ErrNotInDecisionWindow
	}
	for _, opt := range g.node.Options {
		if opt.ID == optionID {
			g.follow(opt, false)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
}

// ReportProgress feeds the video position of the current node. The options
// open once position reaches duration minus the decision window; a node
// without options ends when the video does.
func (g *Gate) ReportProgress(position, duration time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if g.state != StatePlaying || !g.node.IsVideo() {
		return nil
	}
	if len(g.node.Options) == 0 {
		if position >= duration {
			g.end("story finished")
		}
		return nil
	}
	if position >= duration-g.node.DecisionWindow() {
		g.openDecision()
	}
	return nil
}

func (g *Gate) UnlockWithCoins() (model.UnlockResult, error) {
	return g.unlock(func(ctx context.Context, userID, nodeID string) (model.UnlockResult, error) {
		return g.unlocker.UnlockWithCoins(ctx, userID, nodeID)
	})
}

func (g *Gate) UnlockWithAd(trackingID string, completed bool) (model.UnlockResult, error) {
	return g.unlock(func(ctx context.Context, userID, nodeID string) (model.UnlockResult, error) {
		return g.unlocker.UnlockWithAd(ctx, unlock.AdUnlockInput{
			UserID:     userID,
			ContentID:  nodeID,
			TrackingID: trackingID,
			Completed:  completed,
		})
	})
}

// Close stops every pending timer. No callback acts after Close returns.
func (g *Gate) Close() {
	g.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	g.stopTimer()
}

func (g *Gate) unlock(call func(ctx context.Context, userID, nodeID string) (model.UnlockResult, error)) (model.UnlockResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return model.UnlockResult{}, ErrClosed
	}
	if g.state != StateLocked {
		return model.UnlockResult{}, ErrNotLocked
	}
	if g.unlocker == nil {
		return model.UnlockResult{}, ErrNoUnlocker
	}

	g.state = StateUnlocking
	result, err := call(g.ctx, g.userID, g.node.ID)
	if err != nil {
		g.state = StateLocked
		g.logger.Info("unlock refused",
			zap.String("user_id", g.userID),
			zap.String("node_id", g.node.ID),
			zap.Error(err),
		)
		return model.UnlockResult{}, err
	}
	g.play()
	return result, nil
}

func (g *Gate) enter(nodeID string) {
	g.stopTimer()
	node, ok := g.graph.Node(nodeID)
	if !ok {
		g.node = catalog.Node{ID: nodeID}
		g.end("node not found")
		return
	}
	g.node = node

	access, err := g.access.CheckAccess(g.ctx, g.userID, node.ID)
	if err != nil {
		g.state = StateLocked
		g.logger.Warn("access check failed",
			zap.String("user_id", g.userID),
			zap.String("node_id", node.ID),
			zap.Error(err),
		)
		g.emit(Event{Type: EventError, Err: err})
		return
	}
	if !access.Allowed {
		g.state = StateLocked
		g.emit(Event{Type: EventLocked, Access: &access, Reason: access.Reason})
		return
	}
	g.play()
}

func (g *Gate) play() {
	g.state = StatePlaying
	g.emit(Event{Type: EventPlaying})
	if g.node.IsVideo() {
		return
	}
	g.arm(g.revealDelay, func() {
		if len(g.node.Options) == 0 {
			g.end("story finished")
			return
		}
		g.openDecision()
	})
}

func (g *Gate) openDecision() {
	g.stopTimer()
	g.state = StateDecisionWindow
	countdown := g.node.DecisionWindow()
	g.emit(Event{Type: EventDecisionWindow, Options: g.node.Options, Countdown: countdown})
	g.arm(countdown, func() {
		opt, ok := g.node.DefaultOption()
		if !ok {
			g.end("no options")
			return
		}
		g.follow(opt, true)
	})
}

func (g *Gate) follow(opt catalog.Option, auto bool) {
	g.stopTimer()
	g.state = StateTransitioning
	reason := "selected"
	if auto {
		reason = "timeout"
	}
	g.emit(Event{Type: EventTransition, Option: &opt, Reason: reason})
	if _, ok := g.graph.Node(opt.TargetID); !ok {
		g.end("target node not found")
		return
	}
	g.enter(opt.TargetID)
}

func (g *Gate) end(reason string) {
	g.stopTimer()
	g.state = StateEnded
	g.emit(Event{Type: EventEnded, Reason: reason})
}

// arm schedules fn under the gate lock. A callback whose timer was replaced,
// stopped or closed in the meantime does nothing.
func (g *Gate) arm(d time.Duration, fn func()) {
	g.stopTimer()
	seq := g.timerSeq
	g.timer = g.clock.AfterFunc(d, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.closed || g.timerSeq != seq {
			return
		}
		g.timer = nil
		fn()
	})
}

func (g *Gate) stopTimer() {
	g.timerSeq++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *Gate) emit(event Event) {
	event.NodeID = g.node.ID
	event.State = g.state
	for _, observer := range g.observers {
		observer(event)
	}
}
