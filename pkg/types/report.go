package types

import (
	"sort"
	"time"
)

// ToolUsage is one tool row of a report.
type ToolUsage struct {
	EventName        string  `json:"eventName"`
	ToolName         string  `json:"toolName"`
	Category         string  `json:"category"`
	Total            int     `json:"total"`
	InitialCondition string  `json:"initialCondition"`
	FinalCondition   *string `json:"finalCondition"`
	Notes            *string `json:"notes"`
}

type CategoryInsight struct {
	UsageCount    int `json:"usageCount"`
	ItemsDeployed int `json:"itemsDeployed"`
	DamagedCount  int `json:"damagedCount"`
}

type Report struct {
	StartDate          string                      `json:"startDate"`
	EndDate            string                      `json:"endDate"`
	From               time.Time                   `json:"-"`
	To                 time.Time                   `json:"-"`
	TotalEvents        int                         `json:"totalEvents"`
	TotalItemsDeployed int                         `json:"totalItemsDeployed"`
	CategoryInsights   map[string]*CategoryInsight `json:"categoryInsights"`
	DamagedTools       []ToolUsage                 `json:"damagedTools"`
	AllTools           []ToolUsage                 `json:"allTools"`
}

func (r *Report) TotalUsageCount() int {
	total := 0
	for _, insight := range r.CategoryInsights {
		total += insight.UsageCount
	}
	return total
}

// UsageShare returns the category's share of all tool usages in percent.
func (r *Report) UsageShare(category string) float64 {
	insight, ok := r.CategoryInsights[category]
	if !ok {
		return 0
	}

	total := r.TotalUsageCount()
	if total == 0 {
		return 0
	}

	return float64(insight.UsageCount) / float64(total) * 100
}

// Categories returns category keys ordered by usage count, most used first.
func (r *Report) Categories() []string {
	out := make([]string, 0, len(r.CategoryInsights))
	for category := range r.CategoryInsights {
		out = append(out, category)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := r.CategoryInsights[out[i]], r.CategoryInsights[out[j]]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return out[i] < out[j]
	})

	return out
}
