package handlers

import (
	"context"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/utils"
)

// errorReportLimit keeps a report inside Discord's message size limit once fenced.
const errorReportLimit = 1950

// reportError delivers a failure report to the error channel, or to the root
// user by DM when no error channel is set. Delivery is best-effort.
func (h *BotHandler) reportError(ctx context.Context, trace string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorReportTimeout)
	defer cancel()

	content := "```" + utils.Truncate(trace, errorReportLimit) + "```"
	settings := h.registry.Settings()

	var err error
	switch {
	case settings.ErrorChannelID != "":
		_, err = h.discord.SendMessage(ctx, settings.ErrorChannelID, content)
	case settings.RootID != "":
		err = h.discord.SendDirectMessage(ctx, settings.RootID, content)
	default:
		log.Warn(ctx, "No error channel or root user configured, error report dropped")
		return
	}
	if err != nil {
		log.Error(ctx, "Failed to deliver error report",
			"error", err,
			"operation", "report_error",
		)
	}
}
