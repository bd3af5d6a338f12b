package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dgmarket/storage"
)

// Manager provides keyed access to all marketplace state: the listing table,
// market parameters, the fungible token ledger and the asset registry. Writes
// are staged in an overlay and journalled so a whole engine operation can be
// reverted when any of its sub-steps fails; nothing reaches the backing
// database until Commit.
type Manager struct {
	db      storage.Database
	overlay map[string]overlayValue
	journal []journalEntry
}

type overlayValue struct {
	data    []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    overlayValue
	hadPrev bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string]overlayValue),
	}
}

func kvKey(parts ...[]byte) []byte {
	buf := make([]byte, 0, 64)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if v, ok := m.overlay[string(key)]; ok {
		if v.deleted {
			return nil, nil
		}
		return append([]byte(nil), v.data...), nil
	}
	return m.db.Get(key)
}

func (m *Manager) set(key []byte, value []byte) {
	m.record(key)
	m.overlay[string(key)] = overlayValue{data: append([]byte(nil), value...)}
}

func (m *Manager) delete(key []byte) {
	m.record(key)
	m.overlay[string(key)] = overlayValue{deleted: true}
}

func (m *Manager) record(key []byte) {
	prev, had := m.overlay[string(key)]
	m.journal = append(m.journal, journalEntry{key: string(key), prev: prev, hadPrev: had})
}

// Snapshot marks the current journal position. A later RevertToSnapshot
// discards every staged write made after this point.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot unwinds staged writes back to the given snapshot.
func (m *Manager) RevertToSnapshot(snap int) {
	if snap < 0 || snap > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= snap; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.overlay[entry.key] = entry.prev
		} else {
			delete(m.overlay, entry.key)
		}
	}
	m.journal = m.journal[:snap]
}

// Commit flushes all staged writes to the backing database as one atomic
// batch and resets the journal. A failed write leaves both the database and
// the overlay untouched, so the caller can still revert. Callers commit once
// per successfully completed operation.
func (m *Manager) Commit() error {
	batch := storage.NewBatch()
	for key, value := range m.overlay {
		if value.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value.data)
	}
	if err := m.db.Write(batch); err != nil {
		return err
	}
	m.overlay = make(map[string]overlayValue)
	m.journal = m.journal[:0]
	return nil
}
