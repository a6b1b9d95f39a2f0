// notifier.go — уведомления в каналы Discord.
//
// Каналы назначения задаются конфигурацией; пустой канал — уведомление пропускается.
// Ошибки доставки классифицируются: временные (сеть, 5xx, 429) возвращаются
// вызывающему для повтора в следующем цикле, постоянные (4xx) логируются
// и считаются доставленными — повтор их не исправит.
//
// Prometheus-метрики:
//   - eb_notifications_total{kind, result} — отправленные уведомления
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/erlc-bridge/internal/discord"
	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eb_notifications_total",
	Help: "Уведомления в Discord по типу и результату доставки.",
}, []string{"kind", "result"})

// MessageSender — отправка текста в канал.
// Реализуется *discord.Client.
type MessageSender interface {
	Send(ctx context.Context, channelID, text string) error
}

// NotificationChannels — каналы назначения уведомлений.
type NotificationChannels struct {
	Join  string
	Leave string
	Kill  string
	Mod   string
}

// Notifier — форматирование и доставка уведомлений.
type Notifier struct {
	sender   MessageSender
	channels NotificationChannels
	logger   *slog.Logger
}

// NewNotifier создаёт сервис уведомлений.
func NewNotifier(sender MessageSender, channels NotificationChannels, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		channels: channels,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// send доставляет текст. delivered — сообщение принято Discord;
// ошибка возвращается только для временных сбоев.
func (n *Notifier) send(ctx context.Context, kind, channelID, text string) (delivered bool, err error) {
	if channelID == "" {
		notificationsTotal.WithLabelValues(kind, "skipped").Inc()
		return false, nil
	}

	err = n.sender.Send(ctx, channelID, text)
	switch {
	case err == nil:
		notificationsTotal.WithLabelValues(kind, "delivered").Inc()
		return true, nil
	case discord.IsTransient(err):
		notificationsTotal.WithLabelValues(kind, "retry").Inc()
		n.logger.Warn("Временная ошибка доставки уведомления",
			slog.String("kind", kind),
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		return false, err
	default:
		notificationsTotal.WithLabelValues(kind, "rejected").Inc()
		n.logger.Error("Discord отклонил уведомление",
			slog.String("kind", kind),
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
}

// LogEntry публикует событие лог-потока в соответствующий канал.
// Ошибка — только временная: запись нужно передать повторно.
func (n *Notifier) LogEntry(ctx context.Context, e model.LogEntry) error {
	var err error
	switch e.Type {
	case model.EventJoin:
		_, err = n.send(ctx, "join", n.channels.Join, FormatJoin(e))
	case model.EventLeave:
		_, err = n.send(ctx, "leave", n.channels.Leave, FormatLeave(e))
	case model.EventKill:
		_, err = n.send(ctx, "kill", n.channels.Kill, FormatKill(e))
	}
	return err
}

// Violation уведомляет модераторов о нарушении и сообщает, доставлено ли уведомление.
// Ошибка доставки не возвращается.
func (n *Notifier) Violation(ctx context.Context, v *model.Violation, reassignTo string, reassignErr error) bool {
	delivered, _ := n.send(ctx, "violation", n.channels.Mod, FormatViolation(v, reassignTo, reassignErr))
	return delivered
}

// AuthHalt уведомляет модераторов об остановке опроса.
func (n *Notifier) AuthHalt(ctx context.Context, cause error) {
	_, _ = n.send(ctx, "auth_halt", n.channels.Mod, FormatAuthHalt(cause))
}

// --- Форматирование ---

func formatTime(e model.LogEntry) string {
	return e.Time().Format(time.RFC3339)
}

func formatPlayer(p model.PlayerRef) string {
	if p.ID == "" {
		return fmt.Sprintf("**%s**", p.Name)
	}
	return fmt.Sprintf("**%s** (ID %s)", p.Name, p.ID)
}

// FormatJoin — текст уведомления о входе игрока.
func FormatJoin(e model.LogEntry) string {
	return fmt.Sprintf("%s joined the server at %s.", formatPlayer(e.Player), formatTime(e))
}

// FormatLeave — текст уведомления о выходе игрока.
func FormatLeave(e model.LogEntry) string {
	return fmt.Sprintf("%s left the server at %s.", formatPlayer(e.Player), formatTime(e))
}

// FormatKill — текст уведомления об убийстве.
func FormatKill(e model.LogEntry) string {
	return fmt.Sprintf("**%s** eliminated **%s** at %s.", e.Killer.Name, e.Player.Name, formatTime(e))
}

// FormatViolation — текст уведомления модераторам о нарушении.
func FormatViolation(v *model.Violation, reassignTo string, reassignErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ **%s** (ID %s, <@%s>) joined team **%s** without a required Discord role",
		v.Player.Name, v.Player.PlayerID, v.DiscordUserID, v.Team)
	if len(v.RequiredRoles) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(v.RequiredRoles, ", "))
	}
	b.WriteString(".")

	if reassignErr != nil {
		fmt.Fprintf(&b, " Moving to **%s** failed: %v.", reassignTo, reassignErr)
	} else {
		fmt.Fprintf(&b, " Moved to **%s**.", reassignTo)
	}
	return b.String()
}

// FormatAuthHalt — текст уведомления об отклонённом ключе сервера.
func FormatAuthHalt(cause error) string {
	return fmt.Sprintf("🛑 The game server API rejected the server key; polling has stopped. "+
		"Update the key and restart the bridge. (%v)", cause)
}
