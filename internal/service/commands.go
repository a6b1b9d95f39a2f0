// commands.go — slash-команды бота: /link, /shift_start, /shift_end, /shift_status.
// Каждая команда всегда возвращает пользователю однозначный ответ;
// при недоступности внешних сервисов — сообщение с предложением повторить.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/erlc-bridge/internal/discord"
	"github.com/bigkaa/erlc-bridge/internal/domain/shift"
)

const (
	msgRetry    = "The service is temporarily unavailable. Please try again in a moment."
	msgInternal = "Something went wrong. Please try again later."
)

// Commands собирает обработчики slash-команд.
type Commands struct {
	links  *LinkService
	shifts *ShiftService
	logger *slog.Logger
}

// NewCommands создаёт набор команд.
func NewCommands(links *LinkService, shifts *ShiftService, logger *slog.Logger) *Commands {
	return &Commands{
		links:  links,
		shifts: shifts,
		logger: logger.With(slog.String("component", "commands")),
	}
}

// Definitions возвращает описания команд для регистрации в боте.
func (c *Commands) Definitions() []discord.Command {
	return []discord.Command{
		{
			Name:        "link",
			Description: "Link your Roblox account to your Discord account",
			Options: []discord.Option{
				{Name: "username", Description: "Your Roblox username", Required: true},
			},
			Handle: c.Link,
		},
		{
			Name:        "shift_start",
			Description: "Start your shift and notify the bot",
			Handle:      c.ShiftStart,
		},
		{
			Name:        "shift_end",
			Description: "End your shift and notify the bot",
			Handle:      c.ShiftEnd,
		},
		{
			Name:        "shift_status",
			Description: "Show whether you are on shift",
			Handle:      c.ShiftStatus,
		},
	}
}

// Link — /link <username>.
func (c *Commands) Link(ctx context.Context, inv discord.Invocation) string {
	username := inv.Options["username"]
	res, err := c.links.Link(ctx, inv.UserID, username)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fmt.Sprintf("'%s' is not a valid Roblox username.", username)
		case errors.Is(err, ErrNotFound):
			return fmt.Sprintf("Roblox user '%s' not found.", username)
		default:
			return c.failure("link", inv, err)
		}
	}

	msg := fmt.Sprintf("Successfully linked your Discord account to Roblox user **%s** (ID: %s).",
		res.Link.RobloxUsername, res.Link.RobloxUserID)
	if res.GroupRole != nil {
		msg += fmt.Sprintf(" You hold the role **%s** in the Roblox group **%s**.",
			res.GroupRole.RoleName, res.GroupRole.GroupName)
	}
	return msg
}

// ShiftStart — /shift_start.
func (c *Commands) ShiftStart(ctx context.Context, inv discord.Invocation) string {
	if _, err := c.shifts.Start(ctx, inv.UserID); err != nil {
		if errors.Is(err, shift.ErrAlreadyOnShift) {
			return "You are already on shift. End it with /shift_end first."
		}
		return c.failure("shift_start", inv, err)
	}
	return "Your shift has been started."
}

// ShiftEnd — /shift_end.
func (c *Commands) ShiftEnd(ctx context.Context, inv discord.Invocation) string {
	sess, err := c.shifts.End(ctx, inv.UserID)
	if err != nil {
		if errors.Is(err, shift.ErrNotOnShift) {
			return "You are not on shift. Start one with /shift_start."
		}
		return c.failure("shift_end", inv, err)
	}
	return fmt.Sprintf("Your shift has been ended. Duration: %s.",
		formatDuration(sess.Duration(*sess.EndedAt)))
}

// ShiftStatus — /shift_status.
func (c *Commands) ShiftStatus(_ context.Context, inv discord.Invocation) string {
	sess, ok := c.shifts.Status(inv.UserID)
	if !ok {
		return "You are not on shift."
	}
	return fmt.Sprintf("You are on shift since %s (%s).",
		sess.StartedAt.Format(time.RFC3339), formatDuration(c.shifts.Elapsed(sess)))
}

// failure логирует ошибку команды и возвращает ответ пользователю.
func (c *Commands) failure(command string, inv discord.Invocation, err error) string {
	c.logger.Error("Ошибка выполнения команды",
		slog.String("command", command),
		slog.String("user_id", inv.UserID),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return msgRetry
	}
	return msgInternal
}

// formatDuration округляет длительность до секунд.
func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
