package workflow

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// ApprovalGate routes suggestions to a human or the auto-approval path by
// automation level.
type ApprovalGate struct {
	Level    models.AutomationLevel
	Callback ApprovalFunc
	Logger   zerolog.Logger
}

// Approve returns the approved subset. Under auto the callback is never
// invoked and everything passes. Under manual/ask the callback decides; if no
// callback was supplied everything is approved with a warning, and a callback
// error or panic approves nothing.
func (g ApprovalGate) Approve(suggestions []models.MaintenanceSuggestion) []models.MaintenanceSuggestion {
	if len(suggestions) == 0 {
		return nil
	}

	switch g.Level {
	case models.AutomationAuto:
		g.Logger.Info().Int("count", len(suggestions)).Msg("auto-approving all suggestions")
		return suggestions
	case models.AutomationManual, models.AutomationAsk:
		if g.Callback == nil {
			g.Logger.Warn().Msg("no approval callback provided, approving all suggestions")
			return suggestions
		}
		approved, err := g.invoke(suggestions)
		if err != nil {
			g.Logger.Error().Err(err).Msg("approval callback failed, approving none")
			return nil
		}
		g.Logger.Info().Int("approved", len(approved)).Int("total", len(suggestions)).Msg("approvals collected")
		return approved
	default:
		g.Logger.Warn().Str("automation_level", string(g.Level)).Msg("unknown automation level, approving all")
		return suggestions
	}
}

func (g ApprovalGate) invoke(suggestions []models.MaintenanceSuggestion) (approved []models.MaintenanceSuggestion, err error) {
	defer func() {
		if r := recover(); r != nil {
			approved = nil
			err = fmt.Errorf("approval callback panicked: %v", r)
		}
	}()
	return g.Callback(suggestions)
}
