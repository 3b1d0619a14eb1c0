package index

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/agentoven/ragjenkins/pkg/contracts"
)

// DefaultCollection is used when a request names none.
const DefaultCollection = "default"

var collectionName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)

// Manager hands out collections sharing one embedding and one vector store
// driver. Thread-safe.
type Manager struct {
	mu          sync.Mutex
	embeddings  contracts.EmbeddingDriver
	store       contracts.VectorStoreDriver
	collections map[string]*Collection
}

// NewManager creates a collection manager.
func NewManager(emb contracts.EmbeddingDriver, store contracts.VectorStoreDriver) *Manager {
	return &Manager{
		embeddings:  emb,
		store:       store,
		collections: make(map[string]*Collection),
	}
}

// ValidName reports whether name can be used as a collection name.
func ValidName(name string) bool {
	return collectionName.MatchString(name)
}

// Get returns the named collection, creating its handle on first use. An
// empty name selects DefaultCollection.
func (m *Manager) Get(name string) (*Collection, error) {
	if name == "" {
		name = DefaultCollection
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = NewCollection(name, m.embeddings, m.store)
		m.collections[name] = c
	}
	return c, nil
}

// Names returns the collections handed out so far, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
