package domain

// EventSource — агрегат, буферизующий доменные события до сохранения.
type EventSource interface {
	AggregateID() string
	PendingEvents() []Event
	ClearEvents()
}

// EventBuffer встраивается в агрегаты и хранит события в порядке появления.
type EventBuffer struct {
	events []Event
}

func (b *EventBuffer) record(e Event) {
	b.events = append(b.events, e)
}

// PendingEvents возвращает копию буфера.
func (b *EventBuffer) PendingEvents() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// ClearEvents очищает буфер после успешного коммита.
func (b *EventBuffer) ClearEvents() {
	b.events = nil
}
