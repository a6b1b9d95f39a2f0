package discord

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSession — подмена discordgo.Session.
type fakeSession struct {
	sent       []string
	sendErr    error
	members    map[string]*discordgo.Member
	memberErr  error
	roles      []*discordgo.Role
	memberHits int
	roleHits   int
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, channelID+":"+content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.memberHits++
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	m, ok := f.members[userID]
	if !ok {
		return nil, restError(http.StatusNotFound)
	}
	return m, nil
}

func (f *fakeSession) GuildRoles(_ string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.roleHits++
	return f.roles, nil
}

func restError(status int) error {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: status},
		ResponseBody: []byte(`{"message":"error"}`),
	}
}

func newTestClient(api session) *Client {
	return newClient(api, Config{GuildID: "g1", Timeout: time.Second, CacheSize: 10, RoleTTL: time.Minute}, testLogger())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"403 — нет доступа к каналу", restError(http.StatusForbidden), false},
		{"404 — канал удалён", restError(http.StatusNotFound), false},
		{"429 — лимит", restError(http.StatusTooManyRequests), true},
		{"502 — gateway", restError(http.StatusBadGateway), true},
		{"сетевая ошибка", errors.New("connection reset"), true},
		{"таймаут", context.DeadlineExceeded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("send", tt.err)
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient() = %v, ожидается %v", IsTransient(err), tt.transient)
			}
			if errors.Is(err, ErrPermanent) == tt.transient {
				t.Errorf("errors.Is(ErrPermanent) противоречит IsTransient")
			}
		})
	}
	if classify("send", nil) != nil {
		t.Error("classify(nil) должен вернуть nil")
	}
}

func TestClient_Send(t *testing.T) {
	fake := &fakeSession{}
	c := newTestClient(fake)
	ctx := context.Background()

	if err := c.Send(ctx, "", "никуда"); err != nil {
		t.Fatalf("Send() в пустой канал: %v", err)
	}
	if err := c.Send(ctx, "chan", "привет"); err != nil {
		t.Fatalf("Send() ошибка: %v", err)
	}
	if !reflect.DeepEqual(fake.sent, []string{"chan:привет"}) {
		t.Errorf("отправлено %v", fake.sent)
	}

	fake.sendErr = restError(http.StatusServiceUnavailable)
	if err := c.Send(ctx, "chan", "x"); !IsTransient(err) {
		t.Errorf("503: ошибка %v, ожидается временная", err)
	}
}

func TestClient_MemberRoles(t *testing.T) {
	fake := &fakeSession{
		members: map[string]*discordgo.Member{
			"u1": {Roles: []string{"r1", "r2"}},
		},
		roles: []*discordgo.Role{{ID: "r1", Name: "Police Officer"}, {ID: "r2", Name: "Member"}},
	}
	c := newTestClient(fake)
	ctx := context.Background()

	roles, err := c.MemberRoles(ctx, "u1")
	if err != nil {
		t.Fatalf("MemberRoles() ошибка: %v", err)
	}
	want := []string{"Member", "Police Officer", "r1", "r2"}
	if !reflect.DeepEqual(roles, want) {
		t.Errorf("роли = %v, ожидается %v", roles, want)
	}

	// Повторный запрос — из кэша
	if _, err := c.MemberRoles(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if fake.memberHits != 1 || fake.roleHits != 1 {
		t.Errorf("обращений к API: member=%d roles=%d, ожидается 1 и 1", fake.memberHits, fake.roleHits)
	}

	c.InvalidateMember("u1")
	if _, err := c.MemberRoles(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if fake.memberHits != 2 || fake.roleHits != 1 {
		t.Errorf("после инвалидации: member=%d roles=%d", fake.memberHits, fake.roleHits)
	}
}

func TestClient_MemberRolesErrors(t *testing.T) {
	fake := &fakeSession{members: map[string]*discordgo.Member{}}
	c := newTestClient(fake)

	if _, err := c.MemberRoles(context.Background(), "ghost"); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("ошибка %v, ожидается ErrMemberNotFound", err)
	}

	fake.memberErr = restError(http.StatusInternalServerError)
	if _, err := c.MemberRoles(context.Background(), "u2"); !IsTransient(err) {
		t.Errorf("ошибка %v, ожидается временная", err)
	}
}

func TestClient_MemberNotFoundIsCached(t *testing.T) {
	fake := &fakeSession{members: map[string]*discordgo.Member{}}
	c := newTestClient(fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.MemberRoles(ctx, "ghost"); !errors.Is(err, ErrMemberNotFound) {
			t.Fatalf("вызов %d: ошибка %v, ожидается ErrMemberNotFound", i, err)
		}
	}
	if fake.memberHits != 1 {
		t.Errorf("запросов GuildMember = %d, ожидается 1", fake.memberHits)
	}

	// Участник вернулся в гильдию: после инвалидации роли читаются заново
	fake.members["ghost"] = &discordgo.Member{Roles: []string{"r1"}}
	c.InvalidateMember("ghost")
	roles, err := c.MemberRoles(ctx, "ghost")
	if err != nil {
		t.Fatalf("MemberRoles() после инвалидации: %v", err)
	}
	if len(roles) == 0 || roles[0] != "r1" {
		t.Errorf("роли = %v", roles)
	}
	if fake.memberHits != 2 {
		t.Errorf("запросов GuildMember = %d, ожидается 2", fake.memberHits)
	}
}

func TestToApplicationCommand(t *testing.T) {
	def := toApplicationCommand(Command{
		Name:        "link",
		Description: "Привязать аккаунт Roblox",
		Options:     []Option{{Name: "username", Description: "Имя Roblox", Required: true}},
	})
	if def.Name != "link" || len(def.Options) != 1 {
		t.Fatalf("команда = %+v", def)
	}
	opt := def.Options[0]
	if opt.Type != discordgo.ApplicationCommandOptionString || !opt.Required || opt.Name != "username" {
		t.Errorf("параметр = %+v", opt)
	}
}

func TestInvocationFrom(t *testing.T) {
	data := discordgo.ApplicationCommandInteractionData{
		Name: "link",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "username", Type: discordgo.ApplicationCommandOptionString, Value: "builderman"},
		},
	}

	guild := &discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "alice"}}}
	inv := invocationFrom(guild, data)
	if inv.UserID != "u1" || inv.UserName != "alice" || inv.Options["username"] != "builderman" {
		t.Errorf("вызов в гильдии = %+v", inv)
	}

	dm := &discordgo.Interaction{User: &discordgo.User{ID: "u2", Username: "bob"}}
	if inv := invocationFrom(dm, data); inv.UserID != "u2" {
		t.Errorf("вызов в личных сообщениях = %+v", inv)
	}
}

func TestGatewayURL(t *testing.T) {
	if GatewayURL != discordgo.EndpointGateway {
		t.Errorf("GatewayURL = %q, ожидается %q", GatewayURL, discordgo.EndpointGateway)
	}
	if u, err := url.Parse(GatewayURL); err != nil || u.Scheme != "https" || u.Host == "" {
		t.Errorf("GatewayURL = %q: не абсолютный https URL (%v)", GatewayURL, err)
	}
}
