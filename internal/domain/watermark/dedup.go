package watermark

import (
	"context"
	"sort"

	"github.com/bigkaa/erlc-bridge/internal/domain/model"
)

// FirstFetchPolicy — поведение при первой выборке потока без watermark.
type FirstFetchPolicy int

const (
	// SeedOnFirstFetch — запомнить максимум первой выборки, ничего не выдавать.
	// Историю, накопленную до старта, не публикуем.
	SeedOnFirstFetch FirstFetchPolicy = iota
	// ReplayOnFirstFetch — выдать все записи первой выборки.
	ReplayOnFirstFetch
)

// Pending — отобранные новые записи, ожидающие подтверждения.
type Pending struct {
	Stream model.StreamKind
	// Entries — новые записи по возрастанию ключа (стабильно при равенстве)
	Entries []model.LogEntry
	// MaxKey — максимальный ключ всей выборки, включая отброшенные записи
	MaxKey int64
	// Seeded — первая выборка потока, записи не выдаются
	Seeded bool

	hasKeys bool
}

// Empty сообщает, что выдавать нечего.
func (p *Pending) Empty() bool {
	return len(p.Entries) == 0
}

// Deduplicator отбирает новые записи лог-потоков по watermark.
type Deduplicator struct {
	store  *Store
	policy FirstFetchPolicy
}

// NewDeduplicator создаёт дедупликатор поверх store.
func NewDeduplicator(store *Store, policy FirstFetchPolicy) *Deduplicator {
	return &Deduplicator{store: store, policy: policy}
}

// Store возвращает хранилище watermark.
func (d *Deduplicator) Store() *Store {
	return d.store
}

// EmitNew возвращает записи batch с ключом строго больше watermark потока,
// отсортированные по возрастанию ключа. Watermark не меняется до Commit.
func (d *Deduplicator) EmitNew(stream model.StreamKind, batch []model.LogEntry) *Pending {
	p := &Pending{Stream: stream}
	wm, ok := d.store.Get(stream)

	if len(batch) == 0 {
		// Пустая первая выборка: истории нет, поток считается засеянным
		// с watermark 0, и следующие записи выдаются как новые.
		if !ok && d.policy == SeedOnFirstFetch {
			p.Seeded = true
			p.hasKeys = true
		}
		return p
	}

	p.hasKeys = true
	p.MaxKey = batch[0].Key
	for _, e := range batch[1:] {
		if e.Key > p.MaxKey {
			p.MaxKey = e.Key
		}
	}

	if !ok && d.policy == SeedOnFirstFetch {
		p.Seeded = true
		return p
	}

	entries := make([]model.LogEntry, 0, len(batch))
	for _, e := range batch {
		if ok && e.Key <= wm {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	p.Entries = entries
	return p
}

// Commit продвигает watermark до p.MaxKey. Вызывается только после
// успешной передачи p.Entries дальше. Пустая выборка — no-op,
// кроме засева потока пустой первой выборкой (watermark 0).
// Возвращает итоговое значение watermark.
func (d *Deduplicator) Commit(ctx context.Context, p *Pending) (int64, error) {
	if p == nil {
		return 0, nil
	}
	if !p.hasKeys {
		wm, _ := d.store.Get(p.Stream)
		return wm, nil
	}
	return d.store.advance(ctx, p.Stream, p.MaxKey)
}

// CommitDelivered продвигает watermark после частичной передачи:
// delivered — число записей p.Entries, переданных успешно (по порядку).
// Watermark ставится строго ниже ключа первой непереданной записи,
// поэтому записи с тем же ключом будут выданы повторно, но не потеряны.
func (d *Deduplicator) CommitDelivered(ctx context.Context, p *Pending, delivered int) (int64, error) {
	if p == nil || delivered >= len(p.Entries) {
		return d.Commit(ctx, p)
	}
	if delivered <= 0 {
		wm, _ := d.store.Get(p.Stream)
		return wm, nil
	}
	return d.store.advance(ctx, p.Stream, p.Entries[delivered].Key-1)
}
