package checker

import (
	"context"
	"log/slog"
	"time"

	"proxypool/internal/model"
)

// HealthChecker checks a single candidate. *Checker is the production HealthChecker.
type HealthChecker interface {
	Check(ctx context.Context, p model.Candidate) (*CheckResult, error)
}

// OutcomeRecorder is the slice of the store the validator writes to.
type OutcomeRecorder interface {
	RecordSuccess(ctx context.Context, ip string, port int, latency time.Duration) error
	RecordFailure(ctx context.Context, ip string, port int) error
	SetCountry(ctx context.Context, ip string, port int, country string) error
}

// Locator maps an IP to an ISO country code.
type Locator interface {
	Country(ip string) (string, error)
}

// Validator checks candidates and persists each outcome immediately, so a
// crash mid-batch loses at most the outcome in flight.
type Validator struct {
	checker HealthChecker
	repo    OutcomeRecorder
	geo     Locator
}

// NewValidator wires a checker to the store. geo may be nil.
func NewValidator(checker HealthChecker, repo OutcomeRecorder, geo Locator) *Validator {
	return &Validator{
		checker: checker,
		repo:    repo,
		geo:     geo,
	}
}

// Validate reports whether the candidate passed. Store errors are logged and
// never returned: one record's write failure must not affect its siblings.
func (v *Validator) Validate(ctx context.Context, p model.Candidate) bool {
	res, err := v.checker.Check(ctx, p)
	alive := err == nil && res != nil && res.Alive
	if err != nil {
		slog.Debug("Check error", "proxy", p.Key(), "error", err)
	}

	if !alive {
		if err := v.repo.RecordFailure(ctx, p.IP, p.Port); err != nil {
			slog.Error("Persist failure outcome failed", "proxy", p.Key(), "error", err)
		}
		return false
	}

	if err := v.repo.RecordSuccess(ctx, p.IP, p.Port, res.Latency); err != nil {
		slog.Error("Persist success outcome failed", "proxy", p.Key(), "error", err)
	}

	if v.geo != nil && p.Country == "" {
		iso, err := v.geo.Country(p.IP)
		if err == nil && iso != "" {
			if err := v.repo.SetCountry(ctx, p.IP, p.Port, iso); err != nil {
				slog.Warn("Set country failed", "proxy", p.Key(), "error", err)
			}
		}
	}
	return true
}
