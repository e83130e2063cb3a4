// Package reports summarises completed events over a date range: tool
// usage per category, items deployed and tools that came back in a worse
// condition than they left.
package reports

import (
	"context"
	"strings"
	"time"

	"logbook/internal/metrics"
	"logbook/internal/validate"
	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
)

const DateLayout = "2006-01-02"

type CompletedEventReader interface {
	CompletedEventsBetween(ctx context.Context, from, to time.Time) ([]*types.Event, error)
}

type Generator struct {
	logger   *logrus.Logger
	events   CompletedEventReader
	recorder *metrics.Recorder
}

func NewGenerator(logger *logrus.Logger, events CompletedEventReader, recorder *metrics.Recorder) *Generator {
	return &Generator{logger: logger, events: events, recorder: recorder}
}

// Generate builds the report for completed events that ended between the
// start of from and the end of to.
func (g *Generator) Generate(ctx context.Context, from, to time.Time) (*types.Report, error) {
	if err := validate.ReportRange(from, to); err != nil {
		return nil, err
	}

	start, end := StartOfDay(from), EndOfDay(to)

	events, err := g.events.CompletedEventsBetween(ctx, start, end)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch completed events")
	}

	report := Aggregate(from, to, events)
	g.recorder.ReportGenerated()

	g.logger.WithFields(logrus.Fields{
		"from":   report.StartDate,
		"to":     report.EndDate,
		"events": report.TotalEvents,
	}).Debug("report generated")

	return report, nil
}

// Aggregate reduces events into a report. Events that are not completed
// or whose end date lies outside [start of from, end of to] are ignored.
func Aggregate(from, to time.Time, events []*types.Event) *types.Report {
	start, end := StartOfDay(from), EndOfDay(to)

	report := &types.Report{
		StartDate:        start.Format(DateLayout),
		EndDate:          end.Format(DateLayout),
		From:             start,
		To:               end,
		CategoryInsights: map[string]*types.CategoryInsight{},
		DamagedTools:     []types.ToolUsage{},
		AllTools:         []types.ToolUsage{},
	}

	for _, event := range events {
		if event.Status != types.EventStatusCompleted || event.EndDate == nil {
			continue
		}
		if event.EndDate.Before(start) || event.EndDate.After(end) {
			continue
		}

		report.TotalEvents++

		for _, tool := range event.Tools {
			report.TotalItemsDeployed += tool.Total

			usage := types.ToolUsage{
				EventName:        event.Name,
				ToolName:         tool.Name,
				Category:         tool.Category,
				Total:            tool.Total,
				InitialCondition: tool.InitialCondition,
				FinalCondition:   tool.FinalCondition,
				Notes:            tool.Notes,
			}
			report.AllTools = append(report.AllTools, usage)

			insight, ok := report.CategoryInsights[tool.Category]
			if !ok {
				insight = &types.CategoryInsight{}
				report.CategoryInsights[tool.Category] = insight
			}

			insight.UsageCount++
			insight.ItemsDeployed += tool.Total

			if IsDamaged(tool) {
				insight.DamagedCount++
				report.DamagedTools = append(report.DamagedTools, usage)
			}
		}
	}

	return report
}

// IsDamaged reports whether a tool came back in a different condition
// than it left in. Tools without a final condition never count.
func IsDamaged(tool *types.Tool) bool {
	if tool.FinalCondition == nil || *tool.FinalCondition == "" {
		return false
	}
	return !strings.EqualFold(tool.InitialCondition, *tool.FinalCondition)
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// ParseDate reads a YYYY-MM-DD date in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
}
