package comms

import (
	"bytes"
	"fmt"

	"github.com/fakeyudi/scopecomms/internal/wire"
)

// Edit is a pending remote change to library item Item. Data belongs to the
// session and is only valid until the next PollDirty call.
type Edit struct {
	Item uint32
	Data []byte
}

// library holds the registered items and the coalesced dirty table. It is
// only touched by the owner under Session.mu.
type library struct {
	items   []wire.LibraryItem
	created bool

	// pending holds the latest data per item; order is first-arrival order.
	pending map[uint32][]byte
	order   []uint32
}

func (l *library) create(items []wire.LibraryItem) {
	l.items = make([]wire.LibraryItem, len(items))
	for i, it := range items {
		l.items[i] = wire.LibraryItem{Name: it.Name, Type: it.Type, Data: bytes.Clone(it.Data)}
	}
	l.created = true
	l.pending = make(map[uint32][]byte)
}

// check rejects edits that do not fit the registered item.
func (l *library) check(e wire.Edit) error {
	if int64(e.Item) >= int64(len(l.items)) {
		return fmt.Errorf("edit for item %d, library has %d items", e.Item, len(l.items))
	}
	it := l.items[e.Item]
	if err := wire.ValidatePayload(it.Type, e.Data); err != nil {
		return fmt.Errorf("edit for %q: %w", it.Name, err)
	}
	if it.Type == wire.ItemEnum {
		if _, err := wire.ParseEnumValue(e.Data); err != nil {
			return fmt.Errorf("edit for %q: %w", it.Name, err)
		}
	}
	return nil
}

// apply records e as the latest value for its item. A second edit to an item
// that is still pending replaces the first and keeps its queue position.
func (l *library) apply(e wire.Edit) {
	if _, queued := l.pending[e.Item]; !queued {
		l.order = append(l.order, e.Item)
	}
	l.pending[e.Item] = e.Data
	l.items[e.Item].Data = bytes.Clone(e.Data)
}

func (l *library) pop() (Edit, bool) {
	if len(l.order) == 0 {
		return Edit{}, false
	}
	idx := l.order[0]
	l.order = l.order[1:]
	data := l.pending[idx]
	delete(l.pending, idx)
	return Edit{Item: idx, Data: data}, true
}

func (l *library) pendingCount() int { return len(l.order) }
