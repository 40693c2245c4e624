// Package scheduler runs the periodic maintenance jobs of the server.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/billbatista/rateio/ledger"
	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single run so a slow database can't pile runs up.
const jobTimeout = 5 * time.Minute

type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Auditor interface {
	Audit(ctx context.Context) ([]ledger.AuditResult, error)
}

type Scheduler struct {
	cron     *cron.Cron
	sessions SessionPurger
	auditor  Auditor
	ctx      context.Context
}

func New(ctx context.Context, sessions SessionPurger, auditor Auditor) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		auditor:  auditor,
		ctx:      ctx,
	}
}

// Register adds the session purge and the integrity audit with standard five-field specs.
func (s *Scheduler) Register(sessionPurge, integrityAudit string) error {
	if _, err := s.cron.AddFunc(sessionPurge, s.PurgeSessions); err != nil {
		return fmt.Errorf("register session purge: %w", err)
	}
	if _, err := s.cron.AddFunc(integrityAudit, s.AuditLedgers); err != nil {
		return fmt.Errorf("register integrity audit: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs, up to the deadline of ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		slog.Info("scheduler stopped")
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) PurgeSessions() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	n, err := s.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		slog.Error("failed to purge sessions", "error", err)
		return
	}
	slog.Info("expired sessions purged", "count", n)
}

func (s *Scheduler) AuditLedgers() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	results, err := s.auditor.Audit(ctx)
	if err != nil {
		slog.Error("failed to audit ledgers", "error", err)
		return
	}

	unbalanced := 0
	for _, r := range results {
		if !r.Balanced {
			unbalanced++
		}
	}
	slog.Info("integrity audit finished", "ledgers", len(results), "unbalanced", unbalanced)
}
