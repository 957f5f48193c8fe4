package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine collectors. Labels are small fixed sets.
var (
	// promptsTotal counts collection prompts by result (sent, failed).
	promptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alliancebot_prompts_total",
			Help: "IGN collection prompts sent to members.",
		},
		[]string{"result"},
	)

	// submissionsTotal counts IGN submissions by result.
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alliancebot_submissions_total",
			Help: "IGN submissions by result.",
		},
		[]string{"result"},
	)

	// decisionsTotal counts decision attempts by requested outcome and result
	// (applied, stale, lost_race, forbidden, auto_rejected, error).
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alliancebot_decisions_total",
			Help: "Approval decisions by outcome and result.",
		},
		[]string{"outcome", "result"},
	)

	// nicknameApplies counts nickname mutations by result (ok, failed).
	nicknameApplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alliancebot_nickname_applies_total",
			Help: "Nickname mutations attempted on the chat platform.",
		},
		[]string{"result"},
	)

	// driftChecks counts manual-drift checks by result (in_sync, reapplied, failed, skipped).
	driftChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alliancebot_drift_checks_total",
			Help: "Nickname drift checks by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(promptsTotal, submissionsTotal, decisionsTotal, nicknameApplies, driftChecks)
}

// loggerFrom returns the request-scoped logger attached with
// zerolog.Logger.WithContext, or the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
