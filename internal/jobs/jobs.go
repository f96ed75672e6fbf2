// Package jobs holds the scheduled job bodies and their default
// schedules. The YAML job document may override schedules, descriptions,
// and config maps per job name; handlers are bound in code only.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarrylane/praxis/internal/entity"
	"github.com/quarrylane/praxis/internal/notify"
	"github.com/quarrylane/praxis/internal/record"
	"github.com/quarrylane/praxis/internal/recreate"
	"github.com/quarrylane/praxis/internal/sched"
	"github.com/quarrylane/praxis/internal/schema"
)

// Job names. The YAML document refers to jobs by these.
const (
	JobRecreateMonthly   = "recreate-monthly"
	JobRecreateYearly    = "recreate-yearly"
	JobRFIReminders      = "rfi-deadline-reminders"
	JobNotificationFlush = "notification-flush"
)

// Deps are the collaborators the job bodies need.
type Deps struct {
	Entities *entity.Store
	Engine   *recreate.Engine
	Queue    *notify.Queue
	Sender   notify.Sender
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// RegisterAll registers the built-in jobs, applying overrides from the
// YAML job document where present.
func RegisterAll(s *sched.Scheduler, deps Deps, file sched.JobsFile) error {
	defaults := []sched.JobDefinition{
		{
			Name:        JobRecreateMonthly,
			Schedule:    "0 2 1 * *",
			Description: "Clone active monthly engagements into the next month",
			Handler:     recreateJob(deps, schema.IntervalMonthly),
		},
		{
			Name:        JobRecreateYearly,
			Schedule:    "0 3 1 1 *",
			Description: "Clone active yearly engagements into the next year",
			Handler:     recreateJob(deps, schema.IntervalYearly),
		},
		{
			Name:        JobRFIReminders,
			Schedule:    "0 8 * * *",
			Description: "Remind engagement partners about RFIs nearing their deadline",
			Config:      map[string]any{"days_before_expiry": 7},
			Handler:     rfiRemindersJob(deps),
		},
		{
			Name:        JobNotificationFlush,
			Schedule:    "*/5 * * * *",
			Description: "Deliver pending notifications through the configured sender",
			Handler:     notificationFlushJob(deps),
		},
	}

	for _, def := range defaults {
		if override, ok := file.Jobs[def.Name]; ok {
			def.Schedule = override.Schedule
			if override.Description != "" {
				def.Description = override.Description
			}
			if override.Config != nil {
				def.Config = override.Config
			}
		}
		if err := s.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func recreateJob(deps Deps, interval schema.Interval) sched.JobFunc {
	return func(ctx context.Context, _ map[string]any) error {
		stats, err := deps.Engine.RecreateDue(ctx, interval, record.SystemActor)
		if err != nil {
			return err
		}
		deps.logger().Info("recreation pass finished",
			"interval", string(interval),
			"scanned", stats.Scanned,
			"created", stats.Created,
			"failed", stats.Failed,
		)
		if stats.Failed > 0 {
			return fmt.Errorf("%d of %d recreations failed", stats.Failed, stats.Scanned)
		}
		return nil
	}
}

// rfiRemindersJob notifies each engagement's partner about open RFIs
// whose deadline falls within the configured window.
func rfiRemindersJob(deps Deps) sched.JobFunc {
	return func(ctx context.Context, config map[string]any) error {
		days := intConfig(config, "days_before_expiry", 7)
		now := deps.Entities.Now()
		cutoff := now.Add(time.Duration(days) * 24 * time.Hour).Unix()

		rfis, err := deps.Entities.List(ctx, "rfi", nil)
		if err != nil {
			return fmt.Errorf("list rfis: %w", err)
		}

		reminded := 0
		for _, rfi := range rfis {
			if rfi.Fields.StringAt("status") == "completed" || rfi.Fields.IsNull("deadline") {
				continue
			}
			deadline := rfi.Fields.IntAt("deadline")
			if deadline < now.Unix() || deadline > cutoff {
				continue
			}

			engagement, err := deps.Entities.Get(ctx, "engagement", rfi.Fields.StringAt("engagement_id"))
			if err != nil {
				return err
			}
			if engagement == nil {
				continue
			}
			partnerID := engagement.Fields.StringAt("partner_id")
			if partnerID == "" {
				continue
			}

			err = deps.Queue.Enqueue(ctx, notify.Notification{
				Recipient: partnerID,
				Subject: fmt.Sprintf("%s deadline approaching: %s",
					notify.DisplayName("rfi"), rfi.Fields.StringAt("title")),
				Body: fmt.Sprintf("%s %q on engagement %q is due within %d days.",
					notify.DisplayName("rfi"),
					rfi.Fields.StringAt("title"),
					engagement.Fields.StringAt("title"),
					days),
				Entity:   "rfi",
				EntityID: rfi.ID,
			})
			if err != nil {
				return err
			}
			reminded++
		}

		deps.logger().Info("rfi reminder pass finished", "reminded", reminded, "window_days", days)
		return nil
	}
}

func notificationFlushJob(deps Deps) sched.JobFunc {
	return func(ctx context.Context, _ map[string]any) error {
		stats, err := deps.Queue.Flush(ctx, deps.Sender)
		if err != nil {
			return err
		}
		if stats.Failed > 0 {
			return fmt.Errorf("%d notifications failed to deliver", stats.Failed)
		}
		return nil
	}
}

// intConfig reads an integer from a YAML config map, tolerating the
// numeric types the YAML decoder may produce.
func intConfig(config map[string]any, key string, fallback int) int {
	v, ok := config[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
