package agent

import "github.com/haasonsaas/charlotte/pkg/models"

// refMap is an insertion-ordered map whose entries carry a count of the
// history messages referencing them. An entry leaves the map when its last
// referencing message is evicted.
type refMap[T any] struct {
	order []string
	items map[string]T
	refs  map[string]int
}

func newRefMap[T any]() *refMap[T] {
	return &refMap[T]{items: map[string]T{}, refs: map[string]int{}}
}

// put adds v under id, or refreshes the stored value in place.
func (m *refMap[T]) put(id string, v T) {
	if _, ok := m.items[id]; !ok {
		m.order = append(m.order, id)
	}
	m.items[id] = v
}

func (m *refMap[T]) ref(ids []string) {
	for _, id := range ids {
		m.refs[id]++
	}
}

// release drops one reference per id and removes entries nobody
// references any more. It returns the number of entries removed.
func (m *refMap[T]) release(ids []string) int {
	removed := 0
	for _, id := range ids {
		if m.refs[id] > 1 {
			m.refs[id]--
			continue
		}
		delete(m.refs, id)
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			removed++
		}
	}
	if removed > 0 {
		kept := m.order[:0]
		for _, id := range m.order {
			if _, ok := m.items[id]; ok {
				kept = append(kept, id)
			}
		}
		m.order = kept
	}
	return removed
}

func (m *refMap[T]) ids() []string {
	return append([]string(nil), m.order...)
}

func (m *refMap[T]) values() []T {
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out
}

func (m *refMap[T]) count(id string) int {
	return m.refs[id]
}

// workingSet is a session's live documents and tools.
type workingSet struct {
	docs  *refMap[models.Document]
	tools *refMap[models.ToolDefinition]
}

// loadWorkingSet rebuilds the reference counts of a session from its
// history.
func loadWorkingSet(s *models.Session) *workingSet {
	ws := &workingSet{
		docs:  newRefMap[models.Document](),
		tools: newRefMap[models.ToolDefinition](),
	}
	for _, d := range s.Documents {
		ws.docs.put(d.ID, d)
	}
	for _, t := range s.Tools {
		ws.tools.put(t.Name, t)
	}
	for _, msg := range s.History {
		ws.docs.ref(msg.Documents)
		ws.tools.ref(msg.Tools)
	}
	return ws
}

// tag references every live entry from msg.
func (ws *workingSet) tag(msg *models.ChatMessage) {
	msg.Documents = ws.docs.ids()
	msg.Tools = ws.tools.ids()
	ws.docs.ref(msg.Documents)
	ws.tools.ref(msg.Tools)
}

// evict drops the oldest messages until at most limit remain and releases
// their references. It returns the number of messages dropped.
func (ws *workingSet) evict(s *models.Session, limit int) int {
	excess := len(s.History) - limit
	if limit <= 0 || excess <= 0 {
		return 0
	}
	for _, msg := range s.History[:excess] {
		ws.docs.release(msg.Documents)
		ws.tools.release(msg.Tools)
	}
	s.History = append([]models.ChatMessage(nil), s.History[excess:]...)
	return excess
}

// store writes the live entries back onto the session.
func (ws *workingSet) store(s *models.Session) {
	s.Documents = ws.docs.values()
	s.Tools = ws.tools.values()
}
