package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/erlc-bridge/internal/discord"
	"github.com/bigkaa/erlc-bridge/internal/domain/model"
	"github.com/bigkaa/erlc-bridge/internal/roblox"
)

func newTestCommands(resolver *mockResolver, links *memLinkRepo, shifts *memShiftRepo) *Commands {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewCommands(
		NewLinkService(resolver, links, nil, 0, testLogger()),
		newTestShiftService(shifts, &now),
		testLogger(),
	)
}

func TestCommands_Definitions(t *testing.T) {
	cmds := newTestCommands(&mockResolver{}, &memLinkRepo{}, &memShiftRepo{}).Definitions()

	names := make(map[string]discord.Command, len(cmds))
	for _, c := range cmds {
		if c.Handle == nil {
			t.Errorf("у команды %s нет обработчика", c.Name)
		}
		names[c.Name] = c
	}
	for _, want := range []string{"link", "shift_start", "shift_end", "shift_status"} {
		if _, ok := names[want]; !ok {
			t.Errorf("нет команды %s", want)
		}
	}
	if opts := names["link"].Options; len(opts) != 1 || !opts[0].Required {
		t.Errorf("у /link должен быть обязательный параметр username: %+v", opts)
	}
}

func TestCommands_Link(t *testing.T) {
	tests := []struct {
		name     string
		username string
		resolver *mockResolver
		want     string
	}{
		{
			name:     "успешная привязка",
			username: "Builderman",
			resolver: &mockResolver{resolveFn: resolveTo(156, "Builderman")},
			want:     "Successfully linked your Discord account to Roblox user **Builderman** (ID: 156).",
		},
		{
			name:     "пользователь не найден",
			username: "nobody_here",
			resolver: &mockResolver{},
			want:     "Roblox user 'nobody_here' not found.",
		},
		{
			name:     "Roblox недоступен",
			username: "Builderman",
			resolver: &mockResolver{resolveFn: func(context.Context, string) (*model.RobloxUser, error) {
				return nil, roblox.ErrUnavailable
			}},
			want: msgRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCommands(tt.resolver, &memLinkRepo{}, &memShiftRepo{})
			got := c.Link(context.Background(), discord.Invocation{
				UserID:  "d1",
				Options: map[string]string{"username": tt.username},
			})
			if got != tt.want {
				t.Errorf("Link() = %q, ожидается %q", got, tt.want)
			}
		})
	}
}

func TestCommands_ShiftFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestCommands(&mockResolver{}, &memLinkRepo{}, &memShiftRepo{})
	inv := discord.Invocation{UserID: "d1"}

	steps := []struct {
		name string
		run  func(context.Context, discord.Invocation) string
		want string
	}{
		{name: "статус вне смены", run: c.ShiftStatus, want: "You are not on shift."},
		{name: "завершение без смены", run: c.ShiftEnd, want: "You are not on shift."},
		{name: "начало смены", run: c.ShiftStart, want: "Your shift has been started."},
		{name: "повторное начало", run: c.ShiftStart, want: "You are already on shift."},
		{name: "статус на смене", run: c.ShiftStatus, want: "You are on shift since"},
		{name: "завершение смены", run: c.ShiftEnd, want: "Your shift has been ended."},
	}

	for _, s := range steps {
		if got := s.run(ctx, inv); !strings.HasPrefix(got, s.want) {
			t.Errorf("%s: ответ %q, ожидается начало %q", s.name, got, s.want)
		}
	}
}

func TestCommands_ShiftStoreUnavailable(t *testing.T) {
	c := newTestCommands(&mockResolver{}, &memLinkRepo{}, &memShiftRepo{createErr: errors.New("connection refused")})

	got := c.ShiftStart(context.Background(), discord.Invocation{UserID: "d1"})
	if got != msgRetry {
		t.Errorf("ShiftStart() = %q, ожидается сообщение о повторе", got)
	}
}
