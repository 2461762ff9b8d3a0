package core

import (
	"fmt"
	"sort"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/gad"
	"LendLedger/internal/ledger"
	"LendLedger/internal/leverage"
	"LendLedger/internal/observability"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config parameterises the deterministic core.
type Config struct {
	StartSequence       int64
	IdempotencyCapacity int
	// GlobalCheckInterval runs the zero-sum ledger check every N commands.
	GlobalCheckInterval int64
	Oracle              oracle.Params
	Gad                 gad.Params
	Leverage            leverage.Params
	SwapSlippageBps     int64
}

func DefaultConfig() Config {
	return Config{
		IdempotencyCapacity: 1_000_000,
		GlobalCheckInterval: 1_000,
		Oracle:              oracle.DefaultParams(),
		Gad:                 gad.DefaultParams(),
		Leverage:            leverage.DefaultParams(),
		SwapSlippageBps:     30,
	}
}

// Outputs are the channels the core emits on. Any of them may be nil.
type Outputs struct {
	Persist    chan<- CoreOutput   // blocking send
	Projection chan<- CoreOutput   // non-blocking, dropped when full
	Publish    chan<- event.Emitted // non-blocking, dropped when full
}

// CoreOutput is everything one committed command produced. The record
// pointers are committed state, which is never mutated in place.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch // nil when no funds moved
	StateDelta []byte
	Events     []event.Emitted
	Positions  []*state.Position
	Pools      []*pool.Pool
	Leverage   []*leverage.Position
}

// Result is returned to the submitter of a command.
type Result struct {
	Sequence  int64
	Duplicate bool
	// Stale marks an oracle quote at or below the accepted sequence; it was ignored.
	Stale     bool
	StateHash [32]byte
	Events    []event.DomainEvent
}

// DeterministicCore is the single-threaded command processor. All protocol
// state lives here and is only touched from the goroutine running it.
type DeterministicCore struct {
	cfg      Config
	sequence int64
	hasher   *StateHasher

	balanceTracker *ledger.BalanceTracker
	validator      *ledger.InvariantValidator

	protocol     *state.Protocol
	assets       *state.AssetRegistry
	feeds        *oracle.FeedBook
	positions    *state.PositionManager
	pools        *pool.Book
	leverageBook *leverage.Book

	gad          *gad.Engine
	orchestrator *leverage.Orchestrator
	flash        map[string]pool.FlashReceiver

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	logger            zerolog.Logger

	out Outputs
	// lastTimestamp is the unix time of the newest committed command.
	// Commands dated before it are rejected.
	lastTimestamp int64
	// replaying is set while Replay re-applies the event log.
	replaying bool
}

func NewDeterministicCore(
	cfg Config,
	out Outputs,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*DeterministicCore, error) {
	if err := cfg.Oracle.Validate(); err != nil {
		return nil, fmt.Errorf("%w: oracle: %v", state.ErrInvalidConfig, err)
	}
	gadEngine, err := gad.NewEngine(cfg.Gad)
	if err != nil {
		return nil, err
	}
	orchestrator, err := leverage.NewOrchestrator(cfg.Leverage, leverage.OracleSwapper{SlippageBps: cfg.SwapSlippageBps})
	if err != nil {
		return nil, err
	}
	if cfg.GlobalCheckInterval <= 0 {
		cfg.GlobalCheckInterval = DefaultConfig().GlobalCheckInterval
	}

	balanceTracker := ledger.NewBalanceTracker()
	c := &DeterministicCore{
		cfg:               cfg,
		sequence:          cfg.StartSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		validator:         ledger.NewInvariantValidator(balanceTracker),
		protocol:          state.NewProtocol(),
		assets:            state.NewAssetRegistry(),
		feeds:             oracle.NewFeedBook(cfg.Oracle),
		positions:         state.NewPositionManager(),
		pools:             pool.NewBook(),
		leverageBook:      leverage.NewBook(),
		gad:               gadEngine,
		orchestrator:      orchestrator,
		flash:             make(map[string]pool.FlashReceiver),
		idempotency:       NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker, metrics),
		sequenceValidator: NewSequenceValidator(metrics),
		metrics:           metrics,
		logger:            observability.NewLogger("core"),
		out:               out,
	}
	c.RegisterFlashReceiver(HoldReceiver, nil)
	return c, nil
}

// SetLogger replaces the core's logger.
func (c *DeterministicCore) SetLogger(l zerolog.Logger) {
	c.logger = l
}

// ProcessEvent is the main processing pipeline. A returned error means the
// command was rejected and left no trace in state.
func (c *DeterministicCore) ProcessEvent(evt event.Event) (*Result, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	if idempotencyKey == "" {
		return nil, c.reject(eventType, fmt.Errorf("%w: missing idempotency key", state.ErrInvalidCommand))
	}
	if evt.OccurredAt().IsZero() {
		return nil, c.reject(eventType, fmt.Errorf("%w: missing timestamp", state.ErrInvalidCommand))
	}

	// Step 1: Idempotency check (two-tier; LRU only during replay)
	var isDuplicate bool
	if c.replaying {
		isDuplicate = c.idempotency.lru.Contains(compositeKey(eventType, idempotencyKey))
	} else {
		isDuplicate = c.idempotency.IsDuplicate(eventType, idempotencyKey)
	}

	// Step 2: Sequence validation
	partition := evt.Partition()
	sourceSequence := evt.SourceSequence()
	stale, err := c.sequenceValidator.Check(partition, sourceSequence, isDuplicate)
	if err != nil {
		return nil, c.reject(eventType, err)
	}
	if isDuplicate {
		return &Result{Sequence: c.sequence - 1, Duplicate: true, StateHash: c.hasher.GetPrevHash()}, nil
	}
	if stale {
		return &Result{Sequence: c.sequence - 1, Stale: true, StateHash: c.hasher.GetPrevHash()}, nil
	}

	// Step 3: Clock, authorization and pause gate
	if at := evt.OccurredAt().Unix(); at < c.lastTimestamp {
		return nil, c.reject(eventType, fmt.Errorf("%w: %d < %d", state.ErrClockRegression, at, c.lastTimestamp))
	}
	if err := c.authorize(evt); err != nil {
		return nil, c.reject(eventType, err)
	}

	// Step 4: Dispatch into a transaction
	t := c.begin(evt)
	if err := c.dispatch(t, evt); err != nil {
		return nil, c.reject(eventType, err)
	}

	// Step 5: Validate and apply the custody batch
	batch := t.staging.Build(c.sequence)
	if batch != nil {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			c.fatal("unbalanced batch", err)
		}
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return nil, c.reject(eventType, err)
		}
	}

	// Step 6: Commit records
	committed := t.commit()
	c.sequenceValidator.Advance(partition, sourceSequence)
	c.lastTimestamp = t.now

	if err := c.postCheckInvariants(batch, committed); err != nil {
		c.fatal("invariant violated", err)
	}

	// Step 7: State digest and hash chain
	prevHash := c.hasher.GetPrevHash()
	stateDigest := c.computeStateDigest(batch, committed, t)
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := event.Encode(evt)
	if err != nil {
		c.fatal("encode committed command", err)
	}
	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Partition:      partition,
		Caller:         evt.Caller(),
		Timestamp:      evt.OccurredAt(),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	emitted := make([]event.Emitted, len(t.events))
	for i, e := range t.events {
		emitted[i] = event.Emitted{Sequence: c.sequence, Name: e.Name(), Event: e}
	}
	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Events:     emitted,
		Positions:  committed.positions,
		Pools:      committed.pools,
		Leverage:   committed.leverage,
	}

	// Step 8: Emit outputs
	if c.out.Persist != nil {
		// Blocking: the core stalls until persistence drains.
		c.out.Persist <- output
	}
	if c.out.Projection != nil {
		select {
		case c.out.Projection <- output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}
	if c.out.Publish != nil {
		for _, e := range emitted {
			select {
			case c.out.Publish <- e:
			default:
				if c.metrics != nil {
					c.metrics.PublishDrops.Inc()
				}
			}
		}
	}

	// Step 9: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	res := &Result{Sequence: c.sequence, StateHash: stateHash, Events: t.events}
	c.sequence++

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		if batch != nil {
			for _, j := range batch.Journals {
				c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
		c.recordStateMetrics(committed)
	}
	return res, nil
}

func (c *DeterministicCore) reject(eventType string, err error) error {
	class := state.Classify(err)
	if c.metrics != nil {
		c.metrics.CoreEventsRejected.WithLabelValues(eventType, class.String()).Inc()
	}
	c.logger.Debug().Str("event_type", eventType).Str("class", class.String()).Err(err).Msg("command rejected")
	return err
}

func (c *DeterministicCore) fatal(msg string, err error) {
	c.logger.Error().Int64("sequence", c.sequence).Err(err).Msg(msg)
	panic(fmt.Sprintf("FATAL: %s: %v", msg, err))
}

// authorize enforces genesis ordering, admin-only commands and the pause gate.
func (c *DeterministicCore) authorize(evt event.Event) error {
	et := evt.EventType()
	if et == event.EventTypeInitializeProtocol {
		return nil
	}
	if !c.protocol.Initialized {
		return fmt.Errorf("%w: protocol not initialized", state.ErrInvalidConfig)
	}
	if et.IsAdmin() {
		if !c.protocol.IsAdmin(evt.Caller()) {
			return fmt.Errorf("%w: %s requires admin", state.ErrUnauthorized, et)
		}
		return nil
	}
	if c.protocol.Paused && et != event.EventTypeSyncOraclePrice {
		return state.ErrProtocolPaused
	}
	if evt.Caller() == uuid.Nil {
		return fmt.Errorf("%w: missing caller", state.ErrUnauthorized)
	}
	return nil
}

// computeStateDigest creates canonical bytes for the state hash: balances of
// every account the batch touched, then every committed record.
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch, cm committed, t *txn) []byte {
	affected := make(map[ledger.AccountKey]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			affected[j.DebitAccount] = true
			affected[j.CreditAccount] = true
		}
	}
	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64+256)
	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, path...)
		digest = appendInt64LE(digest, c.balanceTracker.GetBalance(key))
	}

	digest = append(digest, c.protocol.CanonicalBytes()...)
	for _, p := range cm.positions {
		digest = append(digest, p.CanonicalBytes()...)
	}
	for _, p := range cm.pools {
		digest = append(digest, p.CanonicalBytes()...)
	}
	for _, p := range cm.leverage {
		digest = append(digest, p.CanonicalBytes()...)
	}
	for _, asset := range t.feeds {
		if f, ok := c.feeds.Feed(asset); ok {
			digest = append(digest, byte(f.Asset), byte(f.Asset>>8))
			digest = appendInt64LE(digest, f.PriceUSD)
			digest = appendInt64LE(digest, f.ConfidenceUSD)
			digest = appendInt64LE(digest, f.LastUpdate)
		}
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants verifies custody and records agree after a commit.
func (c *DeterministicCore) postCheckInvariants(batch *ledger.Batch, cm committed) error {
	if batch != nil {
		if err := c.validator.ValidateAccountsNonNegative(batch); err != nil {
			return fmt.Errorf("post-check non-negative: %w", err)
		}
	}

	for _, p := range cm.pools {
		vault := c.balanceTracker.GetBalance(ledger.PoolLiquidity(p.Asset))
		if want := p.TotalDeposits - p.TotalBorrowed; vault != want {
			return fmt.Errorf("post-check pool %s: vault %d, deposits-borrowed %d", p.Asset, vault, want)
		}
		supply := -c.balanceTracker.GetBalance(ledger.ShareSupplyAccount(p.Asset))
		if supply != p.TotalShares {
			return fmt.Errorf("post-check pool %s: share supply %d, total shares %d", p.Asset, supply, p.TotalShares)
		}
	}

	for _, pos := range cm.positions {
		for _, col := range pos.Collaterals {
			vault := c.balanceTracker.GetCollateralBalance(pos.Owner, col.Asset)
			if vault != col.Amount {
				return fmt.Errorf("post-check position %s: %s vault %d, recorded %d", pos.Owner, col.Asset, vault, col.Amount)
			}
		}
	}

	if c.sequence > 0 && c.sequence%c.cfg.GlobalCheckInterval == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check zero-sum at seq %d: %w", c.sequence, err)
		}
	}
	return nil
}

func (c *DeterministicCore) recordStateMetrics(cm committed) {
	for _, p := range cm.pools {
		asset := p.Asset.String()
		c.metrics.PoolUtilizationBps.WithLabelValues(asset).Set(float64(p.UtilizationBps()))
		c.metrics.PoolBorrowRateBps.WithLabelValues(asset).Set(float64(p.BorrowRateBps()))
		c.metrics.InsuranceFund.WithLabelValues(asset).Set(
			float64(c.balanceTracker.GetBalance(ledger.InsuranceFundAccount(p.Asset))))
	}
	if len(cm.leverage) > 0 {
		var open int
		for _, lp := range c.leverageBook.All() {
			if lp.Active {
				open++
			}
		}
		c.metrics.LeverageOpen.Set(float64(open))
	}
}
