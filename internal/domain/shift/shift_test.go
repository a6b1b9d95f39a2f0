package shift

import (
	"errors"
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name     string
		current  State
		cmd      Command
		want     State
		wantCode string
		wantErr  error
	}{
		{name: "idle → start", current: StateIdle, cmd: CommandStart, want: StateOnShift},
		{name: "on_shift → end", current: StateOnShift, cmd: CommandEnd, want: StateIdle},
		{
			name: "повторный start", current: StateOnShift, cmd: CommandStart,
			want: StateOnShift, wantCode: CodeAlreadyOnShift, wantErr: ErrAlreadyOnShift,
		},
		{
			name: "end без смены", current: StateIdle, cmd: CommandEnd,
			want: StateIdle, wantCode: CodeNotOnShift, wantErr: ErrNotOnShift,
		},
		{
			name: "неизвестная команда", current: StateIdle, cmd: Command("pause"),
			want: StateIdle, wantCode: CodeInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.current, tt.cmd)
			if got != tt.want {
				t.Errorf("состояние = %s, ожидается %s", got, tt.want)
			}

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("неожиданная ошибка: %v", err)
				}
				return
			}

			var te *TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("ожидалась TransitionError, получено %v", err)
			}
			if te.Code != tt.wantCode {
				t.Errorf("Code = %s, ожидается %s", te.Code, tt.wantCode)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantErr)
			}
		})
	}
}

func TestStateOf(t *testing.T) {
	if StateOf(true) != StateOnShift || StateOf(false) != StateIdle {
		t.Error("StateOf() вернул неверное состояние")
	}
}

func TestClampEnd(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := ClampEnd(start, start.Add(-time.Minute)); !got.Equal(start) {
		t.Errorf("ClampEnd() с часами назад = %v, ожидается %v", got, start)
	}
	end := start.Add(2 * time.Hour)
	if got := ClampEnd(start, end); !got.Equal(end) {
		t.Errorf("ClampEnd() = %v, ожидается %v", got, end)
	}
}
