// Пакет watermark — учёт обработанных записей лог-потоков.
//
// Store хранит для каждого потока максимальный обработанный ключ упорядочивания.
// Значение никогда не уменьшается. Писатель один — цикл опроса,
// читатели (status endpoint) используют Snapshot.
//
// Deduplicator отбирает из выборки только новые записи и продвигает
// watermark лишь после того, как вызывающий код подтвердил передачу
// записей дальше (Commit). Без Commit те же записи вернутся в следующем цикле.
package watermark

import (
	"context"
	"fmt"
	"sync"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// Persister — долговременное хранилище watermark (опционально).
type Persister interface {
	// LoadAll возвращает сохранённые значения по всем потокам.
	LoadAll(ctx context.Context) (map[model.StreamKind]int64, error)
	// Save сохраняет значение для потока.
	Save(ctx context.Context, stream model.StreamKind, key int64) error
}

// Store — watermark всех лог-потоков на время жизни процесса.
type Store struct {
	mu        sync.RWMutex
	marks     map[model.StreamKind]int64
	persister Persister
}

// NewStore создаёт хранилище. persister может быть nil — только память.
func NewStore(persister Persister) *Store {
	return &Store{
		marks:     make(map[model.StreamKind]int64),
		persister: persister,
	}
}

// Load загружает сохранённые значения из persister.
// Вызывается один раз при старте, до первого цикла опроса.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	marks, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("загрузка watermark: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for stream, key := range marks {
		if cur, ok := s.marks[stream]; !ok || key > cur {
			s.marks[stream] = key
		}
	}
	return nil
}

// Get возвращает watermark потока. ok == false, если поток ещё не обрабатывался.
func (s *Store) Get(stream model.StreamKind) (key int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok = s.marks[stream]
	return key, ok
}

// Snapshot возвращает копию всех watermark.
func (s *Store) Snapshot() map[model.StreamKind]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[model.StreamKind]int64, len(s.marks))
	for k, v := range s.marks {
		result[k] = v
	}
	return result
}

// advance продвигает watermark потока до key (если key больше текущего)
// и возвращает итоговое значение. Значение в памяти меняется всегда,
// ошибка persister возвращается вызывающему: отставание долговременной
// копии влияет только на повтор после рестарта.
func (s *Store) advance(ctx context.Context, stream model.StreamKind, key int64) (int64, error) {
	s.mu.Lock()
	cur, ok := s.marks[stream]
	if ok && key <= cur {
		s.mu.Unlock()
		return cur, nil
	}
	s.marks[stream] = key
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.Save(ctx, stream, key); err != nil {
			return key, fmt.Errorf("сохранение watermark %s: %w", stream, err)
		}
	}
	return key, nil
}
