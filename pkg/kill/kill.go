// Package kill implements the session killer: abort a session via the
// host API, idempotently against "already gone", and optionally
// record a governor_kill punch.
package kill

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tarsy-labs/session-governor/pkg/classify"
	"github.com/tarsy-labs/session-governor/pkg/hostclient"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// Aborter aborts a session via the agent host.
type Aborter interface {
	AbortSession(ctx context.Context, sessionID string) error
}

// Writer records the optional governor_kill punch.
type Writer interface {
	WritePunch(ctx context.Context, p models.Punch) error
}

// Kill aborts detection.SessionID and returns a KillConfirmation.
// writer may be nil — a nil writer simply skips punch recording.
// Writer failures never fail the kill itself.
func Kill(ctx context.Context, aborter Aborter, writer Writer, detection models.LoopDetection) (models.KillConfirmation, error) {
	alreadyDead := false

	if err := aborter.AbortSession(ctx, detection.SessionID); err != nil {
		if errors.Is(err, hostclient.ErrNotFound) {
			alreadyDead = true
		} else {
			return models.KillConfirmation{}, err
		}
	}

	confirmation := models.KillConfirmation{
		SessionID: detection.SessionID,
		KilledAt:  time.Now().UTC(),
		Trigger: models.KillTrigger{
			Classification: detection.Classification,
			Reason:         detection.Reason,
			AlreadyDead:    alreadyDead,
		},
		FinalMetrics: detection.Metrics,
	}

	if writer != nil {
		punch := buildKillPunch(detection)
		if err := writer.WritePunch(ctx, punch); err != nil {
			slog.Warn("kill: failed to record governor_kill punch",
				"session_id", detection.SessionID, "error", err)
		}
	}

	return confirmation, nil
}

func buildKillPunch(detection models.LoopDetection) models.Punch {
	cost := detection.Metrics.TotalCost
	hash := classify.SourceHash("governor_kill", map[string]any{
		"session_id":     detection.SessionID,
		"classification": string(detection.Classification),
		"step_count":     detection.Metrics.StepCount,
		"total_cost":     detection.Metrics.TotalCost,
	})
	return models.Punch{
		TaskID:     detection.SessionID,
		PunchType:  models.PunchTypeGovernorKill,
		PunchKey:   string(detection.Classification),
		ObservedAt: time.Now().UTC(),
		SourceHash: hash,
		Cost:       &cost,
	}
}
