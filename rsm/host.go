// Package rsm implements the Replicated State Machine host: one actor per
// named state machine that consumes a shared committed log in seqno order,
// drives a user-supplied Module, and serves command/query/sync requests
// with the linearizability guarantees described in the design notes.
package rsm

import (
	"context"
	"fmt"
	"time"

	"github.com/cactus/go-statsd-client/statsd"

	"github.com/timofey-barmin/chronicle/collab"
	"github.com/timofey-barmin/chronicle/revision"
	"github.com/timofey-barmin/chronicle/revtable"
)

// Config bundles the tunables the donor would normally source from a
// config-loading collaborator; config *parsing* is out of scope (see
// SPEC_FULL.md §10), so this is a plain struct with documented defaults.
type Config struct {
	// SyncRevisionTimeout bounds how long sync_revision waits for the
	// requested seqno to be applied before replying timeout, when the
	// caller does not supply a shorter context deadline.
	SyncRevisionTimeout time.Duration
	// MailboxSize bounds how many in-flight client requests the host
	// will buffer before Command/Query/etc. block on send.
	MailboxSize int
}

// DefaultConfig returns the zero-value-safe defaults used when a Host is
// constructed without an explicit Config.
func DefaultConfig() Config {
	return Config{
		SyncRevisionTimeout: 5 * time.Second,
		MailboxSize:         64,
	}
}

// Option configures a Host at construction time.
type Option func(*Host)

// WithStatter injects a statsd.Statter; the default is a no-op.
func WithStatter(s statsd.Statter) Option {
	return func(h *Host) { h.stats = s }
}

// WithConfig overrides the default Config.
func WithConfig(cfg Config) Option {
	return func(h *Host) { h.cfg = cfg }
}

// Host is a single named RSM's actor. Exactly one goroutine (started by
// Run) ever touches the unexported fields below; the public methods only
// enqueue a request and wait for its reply.
type Host struct {
	cfg  Config
	name string
	self revision.PeerID
	args interface{}

	mod      Module
	modState interface{}
	modData  interface{}

	consensus collab.ConsensusServer
	agent     collab.Agent
	bus       collab.EventBus
	revTable  *revtable.Table

	stats statsd.Statter

	// actor-owned state
	appliedHistoryID revision.HistoryID
	appliedSeqno     revision.Seqno
	readSeqno        revision.Seqno
	availableSeqno   revision.Seqno

	pending *pendingClients
	syncQ   *syncQueue

	readerInFlight bool
	readerResultCh chan readerResult
	readerCancel   context.CancelFunc
	runCtx         context.Context

	leader    leaderState
	postponed []postponedRead

	// mailboxes
	commandCh    chan *commandReq
	queryCh      chan *queryReq
	syncRevCh    chan *syncRevReq
	syncCh       chan *syncReq
	appliedRevCh chan *appliedRevReq
	infoCh       chan interface{}

	commandOutcomes <-chan collab.CommandOutcome
	quorumOutcomes  <-chan collab.QuorumOutcome
	termEvents      <-chan collab.TermEvent
	metadataEvents  <-chan revision.Metadata
	unsubscribe     func()

	stopCh chan struct{}
	doneCh chan struct{}
	stopErr error
}

// New constructs a Host for name, backed by mod and the given
// collaborators. It does not start the actor; call Run for that.
func New(name string, self revision.PeerID, mod Module, args interface{},
	consensus collab.ConsensusServer, agent collab.Agent, bus collab.EventBus,
	revTable *revtable.Table, opts ...Option) *Host {

	h := &Host{
		cfg:       DefaultConfig(),
		name:      name,
		self:      self,
		args:      args,
		mod:       mod,
		consensus: consensus,
		agent:     agent,
		bus:       bus,
		revTable:  revTable,
		stats:     noopStatter{},
		pending:   newPendingClients(),
		syncQ:     newSyncQueue(),
		leader:    followerState(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.commandCh = make(chan *commandReq, h.cfg.MailboxSize)
	h.queryCh = make(chan *queryReq, h.cfg.MailboxSize)
	h.syncRevCh = make(chan *syncRevReq, h.cfg.MailboxSize)
	h.syncCh = make(chan *syncReq, h.cfg.MailboxSize)
	h.appliedRevCh = make(chan *appliedRevReq, h.cfg.MailboxSize)
	h.infoCh = make(chan interface{}, h.cfg.MailboxSize)
	h.readerResultCh = make(chan readerResult, 1)
	return h
}

// Run starts the host's actor loop and blocks until the context is
// canceled, Stop is called, or the module/reader terminates fatally. It
// is meant to be invoked with `go host.Run(ctx)` by a supervisor; the
// returned error (also available after Run returns via LastError) is the
// termination reason, mirroring the donor's rungroup/Runner convention.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.doneCh)
	h.runCtx = ctx

	state, data, stop := h.mod.Init(h.name, h.args)
	if stop != nil {
		return fmt.Errorf("rsm: module init refused to start: %w", stop)
	}
	h.modState, h.modData = state, data

	historyID, term, seqno, commandOutcomes, quorumOutcomes, termEvents, ok, err := h.consensus.RegisterRSM(ctx, h.name, h.self)
	if err != nil {
		return fmt.Errorf("rsm: register with consensus server: %w", err)
	}
	h.commandOutcomes = commandOutcomes
	h.quorumOutcomes = quorumOutcomes
	h.termEvents = termEvents
	if ok {
		h.appliedHistoryID = historyID
		h.appliedSeqno = seqno
		h.readSeqno = seqno
		h.availableSeqno = seqno
	}

	events, unsubscribe := h.bus.Subscribe(collab.MetadataTopic)
	h.metadataEvents = events
	h.unsubscribe = unsubscribe
	defer h.unsubscribe()

	h.publishRevision()

	if md, err := h.agent.GetMetadata(ctx); err == nil && md.CommittedSeqno > h.availableSeqno {
		h.availableSeqno = md.CommittedSeqno
	}
	h.maybeStartReader(ctx)

	err = h.loop(ctx)
	h.mod.Terminate(err, h.appliedRevision(), h.modState, h.modData)
	h.revTable.Remove(h.name)
	h.stopErr = err
	return err
}

// Stop asks the host to shut down; Run will return once the current
// handler (if any) finishes.
func (h *Host) Stop() {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
}

// Done reports when Run has returned.
func (h *Host) Done() <-chan struct{} { return h.doneCh }

// LastError is the termination reason after Run returns; nil means a
// clean shutdown via Stop, and a canceled context leaves the context's
// error.
func (h *Host) LastError() error { return h.stopErr }

func (h *Host) appliedRevision() revision.Revision {
	return revision.Revision{HistoryID: h.appliedHistoryID, Seqno: h.appliedSeqno}
}

func (h *Host) publishRevision() {
	h.revTable.Publish(h.name, h.appliedRevision())
}

func (h *Host) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stopCh:
			return nil

		case req := <-h.commandCh:
			h.handleCommand(req)

		case req := <-h.queryCh:
			h.handleQuery(req)

		case req := <-h.syncRevCh:
			h.handleSyncRevision(req)

		case req := <-h.syncCh:
			h.handleSync(req)

		case req := <-h.appliedRevCh:
			h.handleGetAppliedRevision(req)

		case msg := <-h.infoCh:
			if err := h.handleInfo(msg); err != nil {
				return err
			}

		case outcome := <-h.commandOutcomes:
			h.handleCommandOutcome(outcome)

		case outcome := <-h.quorumOutcomes:
			h.handleQuorumOutcome(outcome)

		case ev := <-h.termEvents:
			h.handleTermEvent(ev)

		case md := <-h.metadataEvents:
			h.handleMetadata(md)

		case res := <-h.readerResultCh:
			if res.err != nil {
				return fmt.Errorf("rsm: %w: %v", errReaderDied, res.err)
			}
			h.handleReaderResult(res)
		}
	}
}

func (h *Host) handleInfo(msg interface{}) error {
	if t, ok := msg.(syncRevisionTimeout); ok {
		h.handleSyncRevisionTimeout(t.ref)
		return nil
	}

	newData, stop := h.mod.HandleInfo(msg, h.appliedRevision(), h.modState, h.modData)
	h.modData = newData
	return stop
}

// flushPostponedReads retries every read parked while the leader was in
// WaitForSeqno, once status has advanced to Established.
func (h *Host) flushPostponedReads() {
	if len(h.postponed) == 0 {
		return
	}
	pending := h.postponed
	h.postponed = nil
	for _, p := range pending {
		h.beginRead(p.ctx, p.kind, p.done)
	}
}
