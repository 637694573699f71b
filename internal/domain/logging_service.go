package domain

import (
	"context"
	"log/slog"
	"net/netip"
	"time"
)

type loggingLifecycleService struct {
	logger *slog.Logger
	next   LifecycleService
}

// NewLoggingLifecycleService wraps a lifecycle service with request
// logging. Returns next unchanged if either argument is nil.
func NewLoggingLifecycleService(logger *slog.Logger, next LifecycleService) LifecycleService {
	if logger == nil || next == nil {
		return next
	}

	return &loggingLifecycleService{
		logger: logger,
		next:   next,
	}
}

func (s *loggingLifecycleService) Seen(ctx context.Context, source string, address netip.Addr, mac string) (bool, error) {
	created, err := s.next.Seen(ctx, source, address, mac)
	if err != nil {
		s.logger.ErrorContext(ctx, "seen failed", "source", source, "ip", address.String(), "err", err.Error())
	}
	return created, err
}

func (s *loggingLifecycleService) Reconcile(ctx context.Context, source string, table map[string]string) ReconcileResult {
	result := s.next.Reconcile(ctx, source, table)
	if result.Errors > 0 {
		s.logger.WarnContext(ctx, "reconcile had errors", "source", source, "errors", result.Errors, "recent", result.RecentErrors)
	}
	return result
}

func (s *loggingLifecycleService) SweepInactive(ctx context.Context, threshold time.Duration) (SweepResult, error) {
	result, err := s.next.SweepInactive(ctx, threshold)
	if err != nil {
		s.logger.ErrorContext(ctx, "inactivity sweep failed", "threshold", threshold.String(), "err", err.Error())
	}
	return result, err
}

func (s *loggingLifecycleService) SweepExpired(ctx context.Context, in SweepExpiredInput) (ReleaseSweepResult, error) {
	result, err := s.next.SweepExpired(ctx, in)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "days", in.ThresholdDays, "err", err.Error())
	}
	return result, err
}

func (s *loggingLifecycleService) Request(ctx context.Context, address netip.Addr, in RequestIPInput) (*HistoryEntry, error) {
	entry, err := s.next.Request(ctx, address, in)
	if err != nil {
		s.logger.ErrorContext(ctx, "request failed", "ip", address.String(), "responsible", in.Responsible, "err", err.Error())
		return nil, err
	}

	s.logger.InfoContext(ctx, "address requested", "ip", address.String(), "responsible", in.Responsible, "actor", in.Actor)
	return entry, nil
}

func (s *loggingLifecycleService) VoluntaryRelease(ctx context.Context, address netip.Addr, actor string) (*HistoryEntry, error) {
	entry, err := s.next.VoluntaryRelease(ctx, address, actor)
	if err != nil {
		s.logger.ErrorContext(ctx, "voluntary release failed", "ip", address.String(), "actor", actor, "err", err.Error())
		return nil, err
	}

	s.logger.InfoContext(ctx, "address released by holder", "ip", address.String(), "actor", actor)
	return entry, nil
}

func (s *loggingLifecycleService) ReleaseExpired(ctx context.Context, address netip.Addr, force bool, actor string) (*HistoryEntry, error) {
	entry, err := s.next.ReleaseExpired(ctx, address, force, actor)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry release failed", "ip", address.String(), "force", force, "err", err.Error())
		return nil, err
	}

	s.logger.DebugContext(ctx, "expiry release done", "ip", address.String(), "force", force)
	return entry, nil
}
