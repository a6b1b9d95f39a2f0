// Пакет shift — конечный автомат смены пользователя.
//
// Два состояния: idle ↔ on_shift.
//   - start допустим только из idle
//   - end допустим только из on_shift
//
// Автомат не хранит состояние: текущее состояние определяется
// наличием открытой смены у пользователя.
package shift

import (
	"errors"
	"fmt"
	"time"
)

// State — состояние пользователя.
type State string

const (
	// StateIdle — нет открытой смены
	StateIdle State = "idle"
	// StateOnShift — смена открыта
	StateOnShift State = "on_shift"
)

// Command — команда пользователя.
type Command string

const (
	CommandStart Command = "start"
	CommandEnd   Command = "end"
)

// Коды ошибок переходов.
const (
	CodeAlreadyOnShift = "ALREADY_ON_SHIFT"
	CodeNotOnShift     = "NOT_ON_SHIFT"
	CodeInvalidCommand = "INVALID_COMMAND"
)

var (
	// ErrAlreadyOnShift — повторный start при открытой смене.
	ErrAlreadyOnShift = errors.New("смена уже начата")
	// ErrNotOnShift — end без открытой смены.
	ErrNotOnShift = errors.New("нет активной смены")
)

// validTransitions — матрица допустимых переходов: состояние → команда → новое состояние.
var validTransitions = map[State]map[Command]State{
	StateIdle:    {CommandStart: StateOnShift},
	StateOnShift: {CommandEnd: StateIdle},
}

// Transition возвращает состояние после команды cmd из current.
//
// Ошибки (*TransitionError):
//   - ALREADY_ON_SHIFT — start при открытой смене (errors.Is → ErrAlreadyOnShift)
//   - NOT_ON_SHIFT — end без открытой смены (errors.Is → ErrNotOnShift)
func Transition(current State, cmd Command) (State, error) {
	if next, ok := validTransitions[current][cmd]; ok {
		return next, nil
	}

	switch cmd {
	case CommandStart:
		return current, &TransitionError{
			Code:    CodeAlreadyOnShift,
			Message: "смена уже начата, завершите её перед новым началом",
			err:     ErrAlreadyOnShift,
		}
	case CommandEnd:
		return current, &TransitionError{
			Code:    CodeNotOnShift,
			Message: "нет активной смены для завершения",
			err:     ErrNotOnShift,
		}
	default:
		return current, &TransitionError{
			Code:    CodeInvalidCommand,
			Message: fmt.Sprintf("недопустимая команда %q в состоянии %s", cmd, current),
		}
	}
}

// StateOf возвращает состояние по наличию открытой смены.
func StateOf(onShift bool) State {
	if onShift {
		return StateOnShift
	}
	return StateIdle
}

// ClampEnd возвращает время окончания не раньше начала смены.
// Защищает от сдвига часов назад между start и end.
func ClampEnd(start, end time.Time) time.Time {
	if end.Before(start) {
		return start
	}
	return end
}

// TransitionError — ошибка недопустимого перехода.
type TransitionError struct {
	Code    string // Машиночитаемый код (ALREADY_ON_SHIFT, NOT_ON_SHIFT)
	Message string // Человекочитаемое описание
	err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap позволяет сравнивать через errors.Is с ErrAlreadyOnShift/ErrNotOnShift.
func (e *TransitionError) Unwrap() error {
	return e.err
}
