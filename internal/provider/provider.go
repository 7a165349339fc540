// Package provider serves the initial widget snapshots delivered right after
// a subscription. It is a stand-in for the real aggregation pipeline: every
// widget type maps to a canned snapshot so the push path can be exercised
// end to end without the backing stores.
package provider

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// Widget types known to the dashboard.
const (
	TypeSystemHealth        = "systemHealth"
	TypeAlertSummary        = "alertSummary"
	TypeVulnerabilityTrends = "vulnerabilityTrends"
	TypeGDPRRequests        = "gdprRequests"
)

// StaticProvider returns canned snapshots per widget type.
type StaticProvider struct {
	clock clockwork.Clock
}

func NewStaticProvider(clock clockwork.Clock) *StaticProvider {
	return &StaticProvider{clock: clock}
}

// Snapshot returns the canned snapshot for a widget type. ok is false for
// unknown types; the hub then skips the initial delivery.
func (p *StaticProvider) Snapshot(_ context.Context, widgetType string) (any, bool) {
	now := p.clock.Now()

	switch widgetType {
	case TypeSystemHealth:
		return map[string]any{
			"status":      "healthy",
			"cpuPercent":  23.4,
			"memPercent":  61.8,
			"services":    map[string]string{"ingest": "up", "scanner": "up", "notifier": "up"},
			"generatedAt": now,
		}, true
	case TypeAlertSummary:
		return map[string]any{
			"open":         12,
			"critical":     2,
			"acknowledged": 7,
			"latest":       "Suspicious login from new location",
			"generatedAt":  now,
		}, true
	case TypeVulnerabilityTrends:
		return map[string]any{
			"total":       48,
			"bySeverity":  map[string]int{"critical": 3, "high": 11, "medium": 21, "low": 13},
			"trend":       []int{52, 50, 49, 48},
			"generatedAt": now,
		}, true
	case TypeGDPRRequests:
		return map[string]any{
			"pending":     4,
			"completed":   37,
			"overdue":     1,
			"generatedAt": now,
		}, true
	default:
		return nil, false
	}
}
