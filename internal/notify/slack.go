// Package notify posts run summaries to Slack. It is optional: a nil
// Notifier is valid and does nothing.
package notify

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/repo-maintainer/internal/workflow"
)

// Poster abstracts the Slack API client for testing.
type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts workflow run summaries to a Slack channel.
type Notifier struct {
	api     Poster
	channel string
	logger  zerolog.Logger
}

// New creates a Notifier for the given bot token and channel.
func New(botToken, channel string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:     slack.New(botToken),
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// NewWithPoster creates a Notifier over an existing client.
func NewWithPoster(api Poster, channel string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:     api,
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// PostRunSummary posts one run's outcome. Failures are logged, never fatal:
// notification is best-effort and must not affect the run result.
func (n *Notifier) PostRunSummary(result *workflow.Result) {
	if n == nil || result == nil {
		return
	}

	blocks := SummaryBlocks(result)
	_, _, err := n.api.PostMessage(n.channel, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		n.logger.Warn().Err(err).Str("channel", n.channel).Msg("posting run summary failed")
		return
	}
	n.logger.Info().Str("channel", n.channel).Str("session_id", result.SessionID).Msg("run summary posted")
}

// SummaryBlocks renders a run result as Slack Block Kit blocks.
func SummaryBlocks(result *workflow.Result) []slack.Block {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Maintenance run for `%s`*\n", result.Username))
	sb.WriteString(fmt.Sprintf("Repositories analyzed: %d\n", len(result.RepositoriesAnalyzed)))
	sb.WriteString(fmt.Sprintf("Suggestions: %d\n", len(result.Suggestions)))

	var filed int
	for _, issue := range result.IssuesCreated {
		if issue.Success {
			filed++
		}
	}
	sb.WriteString(fmt.Sprintf("Issues created: %d\n", filed))
	if result.Metrics.TokensUsed > 0 {
		sb.WriteString(fmt.Sprintf("Tokens used: %d\n", result.Metrics.TokensUsed))
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", sb.String(), false, false),
			nil, nil,
		),
	}

	if issueLines := issueList(result); issueLines != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", issueLines, false, false),
			nil, nil,
		))
	}

	if len(result.Errors) > 0 {
		var eb strings.Builder
		eb.WriteString(fmt.Sprintf("⚠️ *%d errors*\n", len(result.Errors)))
		limit := len(result.Errors)
		if limit > 5 {
			limit = 5
		}
		for _, e := range result.Errors[:limit] {
			eb.WriteString(fmt.Sprintf("• %s: %s\n", e.Scope, truncate(e.Err.Error(), 120)))
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", eb.String(), false, false),
			nil, nil,
		))
	}
	return blocks
}

func issueList(result *workflow.Result) string {
	var sb strings.Builder
	for _, issue := range result.IssuesCreated {
		if issue.Success {
			sb.WriteString(fmt.Sprintf("• <%s|#%d>\n", issue.IssueURL, issue.IssueNumber))
		}
	}
	return sb.String()
}

// truncate shortens s to max chars, appending "…" if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
