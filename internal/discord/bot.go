// bot.go — slash-команды: регистрация в гильдии и обработка взаимодействий.
// Ответ всегда приватный (ephemeral): сначала deferred-ответ, затем текст результата.
package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Option — строковый параметр команды.
type Option struct {
	Name        string
	Description string
	Required    bool
}

// Invocation — вызов команды пользователем.
type Invocation struct {
	UserID   string
	UserName string
	// Options — значения строковых параметров по имени
	Options map[string]string
}

// Command — описание slash-команды и её обработчик.
// Обработчик возвращает текст ответа и всегда должен отвечать,
// в том числе при недоступности внешних сервисов.
type Command struct {
	Name        string
	Description string
	Options     []Option
	Handle      func(ctx context.Context, inv Invocation) string
}

// Bot — соединение с gateway и диспетчер slash-команд.
type Bot struct {
	client   *Client
	commands map[string]Command
	defs     []*discordgo.ApplicationCommand
	// timeout — срок на обработку одной команды
	timeout time.Duration
	logger  *slog.Logger
}

// NewBot создаёт бота поверх клиента.
func NewBot(client *Client, commands []Command, timeout time.Duration, logger *slog.Logger) *Bot {
	b := &Bot{
		client:   client,
		commands: make(map[string]Command, len(commands)),
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "discord_bot")),
	}
	for _, cmd := range commands {
		b.commands[cmd.Name] = cmd
		b.defs = append(b.defs, toApplicationCommand(cmd))
	}
	return b
}

// toApplicationCommand строит описание команды для Discord API.
func toApplicationCommand(cmd Command) *discordgo.ApplicationCommand {
	def := &discordgo.ApplicationCommand{
		Name:        cmd.Name,
		Description: cmd.Description,
	}
	for _, opt := range cmd.Options {
		def.Options = append(def.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        opt.Name,
			Description: opt.Description,
			Required:    opt.Required,
		})
	}
	return def
}

// Open подключается к gateway. Команды регистрируются в гильдии после Ready.
func (b *Bot) Open() error {
	dg := b.client.dg
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteraction)
	if err := dg.Open(); err != nil {
		return classify("gateway", err)
	}
	b.logger.Info("Подключение к Discord установлено")
	return nil
}

// Close закрывает соединение с gateway.
func (b *Bot) Close() {
	if err := b.client.dg.Close(); err != nil {
		b.logger.Warn("Ошибка закрытия соединения Discord", slog.String("error", err.Error()))
		return
	}
	b.logger.Info("Соединение с Discord закрыто")
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	_, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.client.guildID, b.defs)
	if err != nil {
		b.logger.Error("Ошибка регистрации slash-команд",
			slog.String("guild_id", b.client.guildID),
			slog.String("error", err.Error()),
		)
		return
	}
	b.logger.Info("Slash-команды зарегистрированы",
		slog.String("bot_user", r.User.Username),
		slog.Int("count", len(b.defs)),
	)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	cmd, ok := b.commands[data.Name]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("Ошибка подтверждения команды",
			slog.String("command", data.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	inv := invocationFrom(i.Interaction, data)
	reply := cmd.Handle(ctx, inv)

	// Ответ отправляется даже при истёкшем сроке обработки
	editCtx, editCancel := context.WithTimeout(context.Background(), b.client.timeout)
	defer editCancel()
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply},
		discordgo.WithContext(editCtx)); err != nil {
		b.logger.Warn("Ошибка отправки ответа на команду",
			slog.String("command", data.Name),
			slog.String("user_id", inv.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// invocationFrom извлекает пользователя и параметры команды.
// В гильдии пользователь приходит в Member, в личных сообщениях — в User.
func invocationFrom(i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) Invocation {
	inv := Invocation{Options: make(map[string]string, len(data.Options))}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.UserID = i.Member.User.ID
		inv.UserName = i.Member.User.Username
	case i.User != nil:
		inv.UserID = i.User.ID
		inv.UserName = i.User.Username
	}
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			inv.Options[opt.Name] = opt.StringValue()
		}
	}
	return inv
}
