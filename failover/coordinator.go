// Package failover implements the Failover Coordinator: a single-threaded
// actor, one per node, that atomically installs a new history branch on a
// chosen subset of peers and can best-effort roll it back.
package failover

import (
	"context"
	"fmt"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	"github.com/google/uuid"
	logging "github.com/op/go-logging"

	"github.com/timofey-barmin/chronicle/collab"
	"github.com/timofey-barmin/chronicle/revision"
	"github.com/timofey-barmin/chronicle/rsmerr"
)

var logger = logging.MustGetLogger("failover")

// Timeouts for the three branch RPCs the protocol issues, matching the
// constants named in the design notes.
const (
	StoreBranchTimeout   = 15 * time.Second
	CleanupBranchTimeout = 5 * time.Second
	CancelBranchTimeout  = 15 * time.Second
)

// Config bundles the coordinator's tunables.
type Config struct {
	StoreBranchTimeout   time.Duration
	CleanupBranchTimeout time.Duration
	CancelBranchTimeout  time.Duration
	MailboxSize          int
}

// DefaultConfig returns the protocol's documented timeouts.
func DefaultConfig() Config {
	return Config{
		StoreBranchTimeout:   StoreBranchTimeout,
		CleanupBranchTimeout: CleanupBranchTimeout,
		CancelBranchTimeout:  CancelBranchTimeout,
		MailboxSize:          16,
	}
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithStatter injects a statsd.Statter; the default is a no-op.
func WithStatter(s statsd.Statter) Option {
	return func(c *Coordinator) { c.stats = s }
}

// WithConfig overrides the default Config.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// Coordinator serializes failover/try_cancel calls for one node: exactly
// one goroutine (started by Run) ever executes the protocol bodies below,
// matching §4.2's "processes one request at a time" serialization rule.
type Coordinator struct {
	cfg   Config
	self  revision.PeerID
	agent collab.Agent
	stats statsd.Statter

	newBranchID func() revision.HistoryID

	reqCh  chan coordinatorReq
	stopCh chan struct{}
	doneCh chan struct{}
}

type coordinatorReq struct {
	run func()
}

// New constructs a Coordinator for self, backed by agent. Call Run to start
// its actor loop.
func New(self revision.PeerID, agent collab.Agent, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    DefaultConfig(),
		self:   self,
		agent:  agent,
		stats:  noopStatter{},
		reqCh:  make(chan coordinatorReq),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	c.newBranchID = func() revision.HistoryID {
		return revision.HistoryID(uuid.New().String())
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the coordinator's actor loop until ctx is canceled or Stop
// is called.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case req := <-c.reqCh:
			req.run()
		}
	}
}

// Stop asks the coordinator to shut down once its current request (if any)
// finishes.
func (c *Coordinator) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// Done reports when Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.doneCh }

// call serializes fn through the actor loop and blocks for its result;
// every public method below is a thin wrapper around this.
func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	req := coordinatorReq{run: func() { result <- fn() }}
	select {
	case c.reqCh <- req:
	case <-ctx.Done():
		return rsmerr.ErrTimeout
	case <-c.doneCh:
		return fmt.Errorf("failover: coordinator stopped")
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return rsmerr.ErrTimeout
	}
}

// Failover installs a new history branch on keepPeers, kicking consensus
// forward onto that subset. It returns the installed branch record (so the
// caller can hold onto it for a later TryCancel) alongside the protocol's
// ok/error result. See the protocol steps in the design notes.
func (c *Coordinator) Failover(ctx context.Context, keepPeers []revision.PeerID, opaque interface{}) (revision.Branch, error) {
	start := time.Now()
	defer c.statsTiming("failover.phase.time", start)
	c.statsInc("failover.count", 1)

	var branch revision.Branch
	err := c.call(ctx, func() error {
		b, err := c.runFailover(ctx, keepPeers, opaque)
		branch = b
		return err
	})
	if err != nil {
		c.statsInc("failover.error.count", 1)
	}
	return branch, err
}

func (c *Coordinator) runFailover(ctx context.Context, keepPeers []revision.PeerID, opaque interface{}) (revision.Branch, error) {
	md, err := c.agent.GetMetadata(ctx)
	if err != nil {
		return revision.Branch{}, fmt.Errorf("failover: get local metadata: %w", err)
	}
	if !containsPeer(keepPeers, c.self) {
		return revision.Branch{}, rsmerr.ErrNotInPeers
	}

	branch := revision.Branch{
		HistoryID:    c.newBranchID(),
		OldHistoryID: md.HistoryID,
		Coordinator:  c.self,
		Peers:        keepPeers,
		Opaque:       opaque,
	}

	remotes := excludePeer(keepPeers, c.self)

	storeCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreBranchTimeout)
	ok, failed, err := c.agent.StoreBranch(storeCtx, remotes, branch, c.cfg.StoreBranchTimeout)
	cancel()
	if err != nil {
		return revision.Branch{}, fmt.Errorf("failover: store_branch: %w", err)
	}
	_ = ok
	if len(failed) > 0 {
		aborted := classifyFailures(failed)
		c.rollback(context.Background(), remotes, branch.HistoryID)
		return revision.Branch{}, aborted
	}

	localCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreBranchTimeout)
	err = c.agent.LocalStoreBranch(localCtx, branch, c.cfg.StoreBranchTimeout)
	cancel()
	if err != nil {
		c.rollback(context.Background(), remotes, branch.HistoryID)
		return revision.Branch{}, &rsmerr.AbortedError{FailedPeers: []revision.PeerID{c.self}}
	}

	return branch, nil
}

// rollback issues undo_branch as best-effort cleanup; its outcome is
// logged and swallowed, never surfaced, since the authoritative result is
// the phase that already failed.
func (c *Coordinator) rollback(ctx context.Context, peers []revision.PeerID, historyID revision.HistoryID) {
	if len(peers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CleanupBranchTimeout)
	defer cancel()
	_, failed, err := c.agent.UndoBranch(ctx, peers, historyID, c.cfg.CleanupBranchTimeout)
	if err != nil {
		logger.Warning("failover: best-effort rollback of %v failed: %v", historyID, err)
		return
	}
	for _, f := range failed {
		if f.Err != collab.ErrNoBranch && f.Err != collab.ErrBadBranch {
			logger.Warning("failover: rollback of %v on %v failed: %v", historyID, f.Peer, f.Err)
		}
	}
}

// TryCancel best-effort rolls back a previously installed branch on every
// original peer, tolerating "it was never there" / "superseded" outcomes.
func (c *Coordinator) TryCancel(ctx context.Context, branch revision.Branch) error {
	start := time.Now()
	defer c.statsTiming("try_cancel.time", start)
	c.statsInc("try_cancel.count", 1)

	err := c.call(ctx, func() error {
		return c.runTryCancel(ctx, branch)
	})
	if err != nil {
		c.statsInc("try_cancel.error.count", 1)
	}
	return err
}

func (c *Coordinator) runTryCancel(ctx context.Context, branch revision.Branch) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CancelBranchTimeout)
	defer cancel()

	_, failed, err := c.agent.UndoBranch(ctx, branch.Peers, branch.HistoryID, c.cfg.CancelBranchTimeout)
	if err != nil {
		return fmt.Errorf("failover: undo_branch: %w", err)
	}

	var erring []revision.PeerID
	for _, f := range failed {
		if f.Err == collab.ErrNoBranch || f.Err == collab.ErrBadBranch {
			continue
		}
		erring = append(erring, f.Peer)
	}
	if len(erring) > 0 {
		return &rsmerr.FailedPeersError{Peers: erring}
	}
	return nil
}

func classifyFailures(failed []collab.PeerOutcome) *rsmerr.AbortedError {
	aborted := &rsmerr.AbortedError{}
	for _, f := range failed {
		if f.Err == collab.ErrHistoryMismatch {
			aborted.IncompatiblePeers = append(aborted.IncompatiblePeers, f.Peer)
		} else {
			aborted.FailedPeers = append(aborted.FailedPeers, f.Peer)
		}
	}
	return aborted
}

func containsPeer(peers []revision.PeerID, p revision.PeerID) bool {
	for _, x := range peers {
		if x == p {
			return true
		}
	}
	return false
}

func excludePeer(peers []revision.PeerID, p revision.PeerID) []revision.PeerID {
	out := make([]revision.PeerID, 0, len(peers))
	for _, x := range peers {
		if x != p {
			out = append(out, x)
		}
	}
	return out
}
