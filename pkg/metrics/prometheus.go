package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courselab_team_proposals_total",
			Help: "Total number of team proposals by outcome",
		},
		[]string{"course_id", "outcome"},
	)

	TeamsActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courselab_teams_activated_total",
			Help: "Teams that reached unanimous confirmation",
		},
		[]string{"course_id"},
	)

	TeamsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courselab_teams_evicted_total",
			Help: "Teams destroyed by reject or token expiry",
		},
		[]string{"course_id", "reason"},
	)

	TokensReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courselab_tokens_reaped_total",
			Help: "Expired confirmation tokens swept by the reaper",
		},
	)

	VMAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courselab_vm_admissions_total",
			Help: "VM admission decisions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	QuotaUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courselab_team_quota_usage",
			Help: "Current per-team resource usage",
		},
		[]string{"team_id", "resource"},
	)

	InvitesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courselab_invites_published_total",
			Help: "Invitation messages handed to the queue by status",
		},
		[]string{"status"},
	)
)
