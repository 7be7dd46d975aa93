package boundary

// Store is the read-only collection of administrative boundaries loaded once
// at process start. Implementations can be in-memory or backed by a database;
// Resolve only needs exact-match lookups.
type Store interface {
	Find(state, county string) []Record
	States() []string
	Counties(state string) []string
}

type key struct{ state, county string }

// InMemoryStore is an in-memory implementation of Store. It is not modified
// after NewInMemoryStore returns and is safe for concurrent readers.
type InMemoryStore struct {
	byName   map[key][]Record
	states   []string
	counties map[string][]string
	n        int
}

// NewInMemoryStore indexes recs. States and counties are listed in order of
// first appearance.
func NewInMemoryStore(recs []Record) *InMemoryStore {
	s := &InMemoryStore{
		byName:   make(map[key][]Record),
		counties: make(map[string][]string),
		n:        len(recs),
	}
	for _, r := range recs {
		k := key{r.State, r.County}
		if _, ok := s.counties[r.State]; !ok {
			s.states = append(s.states, r.State)
			s.counties[r.State] = nil
		}
		if _, ok := s.byName[k]; !ok {
			s.counties[r.State] = append(s.counties[r.State], r.County)
		}
		s.byName[k] = append(s.byName[k], r)
	}
	return s
}

// Find implements Store.Find.
func (s *InMemoryStore) Find(state, county string) []Record {
	return s.byName[key{state, county}]
}

// States implements Store.States.
func (s *InMemoryStore) States() []string {
	return append([]string(nil), s.states...)
}

// Counties implements Store.Counties.
func (s *InMemoryStore) Counties(state string) []string {
	return append([]string(nil), s.counties[state]...)
}

// Len returns the number of records in the store.
func (s *InMemoryStore) Len() int { return s.n }
