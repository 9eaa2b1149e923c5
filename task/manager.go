package task

// Manager is the FIFO ready queue plus the pid map.
type Manager struct {
	ready []*TaskControlBlock
	procs map[uint64]*ProcessControlBlock
}

func newManager() Manager {
	return Manager{procs: make(map[uint64]*ProcessControlBlock)}
}

func (m *Manager) Add(t *TaskControlBlock) {
	m.ready = append(m.ready, t)
}

func (m *Manager) Fetch() *TaskControlBlock {
	if len(m.ready) == 0 {
		return nil
	}
	t := m.ready[0]
	m.ready[0] = nil
	m.ready = m.ready[1:]
	return t
}

// Remove drops every queue entry for t.
func (m *Manager) Remove(t *TaskControlBlock) {
	q := m.ready[:0]
	for _, r := range m.ready {
		if r != t {
			q = append(q, r)
		}
	}
	m.ready = q
}

func (m *Manager) Len() int {
	return len(m.ready)
}

// Processor holds the thread running on the hart.
type Processor struct {
	current *TaskControlBlock
}
