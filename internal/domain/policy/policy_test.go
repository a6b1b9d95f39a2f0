package policy

import (
	"reflect"
	"testing"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

func testPolicy() *Policy {
	return New(
		map[string][]string{
			"Police Officer": {"Police"},
			"555000111":      {"Sheriff", "Police"},
			"Firefighter":    {"Fire"},
		},
		[]string{"Police", "Sheriff", "Fire"},
		"Civilian",
	)
}

func TestCheck(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name      string
		team      string
		roles     []string
		violation bool
	}{
		{"неограниченная команда без ролей", "Civilian", nil, false},
		{"неограниченная команда, неизвестная команда", "DOT", []string{"Firefighter"}, false},
		{"ограниченная команда с ролью по имени", "Police", []string{"Police Officer"}, false},
		{"ограниченная команда с ролью по ID", "Sheriff", []string{"555000111"}, false},
		{"регистр команды не важен", "police", []string{"Police Officer"}, false},
		{"ограниченная команда без ролей", "Police", nil, true},
		{"роль для другой команды", "Police", []string{"Firefighter"}, true},
		{"регистр роли важен", "Fire", []string{"firefighter"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := model.RosterEntry{PlayerID: "1", Name: "p1", Team: tt.team}
			v, ok := p.Check(entry, tt.roles)
			if ok != tt.violation {
				t.Fatalf("Check() = %v, ожидается %v", ok, tt.violation)
			}
			if ok && v == nil {
				t.Fatal("нарушение без описания")
			}
			if !ok && v != nil {
				t.Fatal("описание без нарушения")
			}
		})
	}
}

func TestCheck_ViolationDetails(t *testing.T) {
	p := testPolicy()
	entry := model.RosterEntry{PlayerID: "42", Name: "Rookie", Team: "Police"}

	v, ok := p.Check(entry, []string{"Firefighter", "Member"})
	if !ok {
		t.Fatal("ожидалось нарушение")
	}
	if v.Team != "Police" || v.Player.PlayerID != "42" {
		t.Errorf("нарушение = %+v", v)
	}
	if want := []string{"555000111", "Police Officer"}; !reflect.DeepEqual(v.RequiredRoles, want) {
		t.Errorf("RequiredRoles = %v, ожидается %v", v.RequiredRoles, want)
	}
	if want := []string{"Fire"}; !reflect.DeepEqual(v.PermittedTeams, want) {
		t.Errorf("PermittedTeams = %v, ожидается %v", v.PermittedTeams, want)
	}
}

func TestIsRestricted(t *testing.T) {
	p := testPolicy()
	if !p.IsRestricted(" SHERIFF ") {
		t.Error("Sheriff должна быть ограниченной")
	}
	if p.IsRestricted("Civilian") {
		t.Error("Civilian не должна быть ограниченной")
	}
	if p.DefaultTeam() != "Civilian" {
		t.Errorf("DefaultTeam() = %q", p.DefaultTeam())
	}
}

func TestRequiredRoles_ReturnsCopy(t *testing.T) {
	p := testPolicy()
	roles := p.RequiredRoles("Police")
	roles[0] = "changed"
	if p.RequiredRoles("Police")[0] == "changed" {
		t.Error("RequiredRoles() отдаёт внутренний срез")
	}
}
