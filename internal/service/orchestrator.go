package service

import (
	"context"
	"sync"
	"time"

	"telerelay/internal/constants"
	"telerelay/internal/errors"
	"telerelay/internal/metrics"

	"github.com/sirupsen/logrus"
)

// OrchestratorOptions carries the health sweep and recovery tunables.
type OrchestratorOptions struct {
	SweepInterval       time.Duration
	MaxRecoveryAttempts int
	RecoveryCooldown    time.Duration
	StartupDelay        time.Duration
}

// Orchestrator is the process-wide coordination layer above the
// session manager: it restores all previously authenticated users at
// startup, sweeps registered handles for liveness on a fixed interval,
// and throttles per-user recovery so a rate-limited account is not
// hammered.
type Orchestrator struct {
	sessions *SessionManager
	registry *Registry
	store    Store
	logger   *logrus.Logger
	errlog   *errors.Logger
	opts     OrchestratorOptions

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewOrchestrator(sessions *SessionManager, registry *Registry, store Store, logger *logrus.Logger, opts OrchestratorOptions) *Orchestrator {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Duration(constants.DefaultHealthSweepIntervalSec) * time.Second
	}
	if opts.MaxRecoveryAttempts <= 0 {
		opts.MaxRecoveryAttempts = constants.DefaultMaxRecoveryAttempts
	}
	if opts.RecoveryCooldown <= 0 {
		opts.RecoveryCooldown = time.Duration(constants.DefaultRecoveryCooldownSec) * time.Second
	}
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = time.Duration(constants.DefaultStartupDelayMs) * time.Millisecond
	}
	return &Orchestrator{
		sessions: sessions,
		registry: registry,
		store:    store,
		logger:   logger,
		errlog:   errors.WrapLogger(logger),
		opts:     opts,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the periodic health sweep.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.Warn("Orchestrator is already running")
		return
	}
	if o.stopCh == nil {
		o.stopCh = make(chan struct{})
	}
	o.running = true
	o.mu.Unlock()

	go o.sweepLoop(ctx)
	o.logger.WithField("interval", o.opts.SweepInterval.String()).Info("Health sweep started")
}

// Stop halts the health sweep.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}
	if o.stopCh != nil {
		close(o.stopCh)
		o.stopCh = nil
	}
	o.running = false
	o.logger.Info("Health sweep stopped")
}

func (o *Orchestrator) getStopCh() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopCh == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.stopCh
}

func (o *Orchestrator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.getStopCh():
			return
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}

// Sweep probes every registered handle and recovers the broken ones,
// honoring per-user suspensions.
func (o *Orchestrator) Sweep(ctx context.Context) {
	for _, userID := range o.registry.Users() {
		log := o.logger.WithField("userId", userID)

		if o.registry.IsSuspended(userID) {
			log.Debug("Recovery suspended, skipping health check")
			continue
		}

		handle := o.registry.Get(userID)
		if handle == nil {
			continue
		}
		if _, err := handle.Probe(ctx); err == nil {
			o.registry.ResetRecovery(userID)
			continue
		} else {
			log.WithError(err).Warn("Handle failed health probe, recovering")
		}

		o.recover(ctx, userID)
	}
}

// recover tears the broken handle down and runs a full restoration
// plus rule reconciliation. Consecutive failures count toward the
// suspension threshold.
func (o *Orchestrator) recover(ctx context.Context, userID int64) {
	log := o.logger.WithField("userId", userID)
	metrics.IncrementCounter("sessions.recovery.attempts", nil, "Health sweep recovery attempts")

	o.sessions.Release(userID)

	if _, err := o.sessions.Acquire(ctx, userID); err != nil {
		failures, suspended := o.registry.RecordRecoveryFailure(userID, o.opts.MaxRecoveryAttempts, o.opts.RecoveryCooldown)
		if suspended {
			metrics.IncrementCounter("sessions.recovery.suspended", nil, "Users suspended after repeated recovery failures")
			log.WithFields(logrus.Fields{
				"failures": failures,
				"cooldown": o.opts.RecoveryCooldown.String(),
			}).Error("Recovery attempts exhausted, suspending user")
		} else {
			o.errlog.LogRetryableError(err, "Recovery failed",
				logrus.Fields{"userId": userID, "failures": failures})
		}
		return
	}

	o.registry.ResetRecovery(userID)
	if err := o.ReconcileRules(ctx, userID); err != nil {
		log.WithError(err).Warn("Rule reconciliation after recovery failed")
	}
	log.Info("Session recovered")
}

// ReconcileRules binds every active rule the user has. A rule whose
// bind fails is persisted inactive; it can be started again explicitly
// once the underlying problem is fixed.
func (o *Orchestrator) ReconcileRules(ctx context.Context, userID int64) error {
	rules, err := o.store.GetActiveRulesForUser(ctx, userID)
	if err != nil {
		return err
	}

	for i := range rules {
		rule := &rules[i]
		if err := o.sessions.BindRule(ctx, rule); err != nil {
			o.logger.WithError(err).WithFields(logrus.Fields{
				"userId": userID,
				"ruleId": rule.ID,
			}).Warn("Rule failed to bind, deactivating")

			metrics.IncrementCounter("rules.bind.failed", nil, "Rules deactivated after a failed bind")
			if dbErr := o.store.SetRuleActive(ctx, rule.ID, false); dbErr != nil {
				o.logger.WithError(dbErr).WithField("ruleId", rule.ID).Error("Failed to persist rule deactivation")
			}
		}
	}
	return nil
}

// RestoreAllSessions brings up every previously authenticated user at
// startup, pacing connects with a small inter-user delay. Users that
// fail get one more pass before being left to the health sweep.
func (o *Orchestrator) RestoreAllSessions(ctx context.Context) {
	users, err := o.store.GetAllAuthenticatedUsers(ctx)
	if err != nil {
		o.logger.WithError(err).Error("Failed to list authenticated users for startup restore")
		return
	}
	if len(users) == 0 {
		o.logger.Info("No authenticated users to restore")
		return
	}

	o.logger.WithField("users", len(users)).Info("Restoring sessions for authenticated users")

	var failed []int64
	for i, user := range users {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.opts.StartupDelay):
			}
		}
		if !o.restoreOne(ctx, user.ID) {
			failed = append(failed, user.ID)
		}
	}

	// Second pass for the stragglers.
	for _, userID := range failed {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.opts.StartupDelay):
		}
		if !o.restoreOne(ctx, userID) {
			o.logger.WithField("userId", userID).Warn("Startup restore failed twice, leaving user to the health sweep")
		}
	}

	o.logger.WithFields(logrus.Fields{
		"restored": o.registry.Count(),
		"total":    len(users),
	}).Info("Startup session restore finished")
}

func (o *Orchestrator) restoreOne(ctx context.Context, userID int64) bool {
	if _, err := o.sessions.Acquire(ctx, userID); err != nil {
		o.errlog.LogRetryableError(err, "Startup restore failed", logrus.Fields{"userId": userID})
		return false
	}
	if err := o.ReconcileRules(ctx, userID); err != nil {
		o.logger.WithError(err).WithField("userId", userID).Warn("Startup rule reconciliation failed")
	}
	return true
}
