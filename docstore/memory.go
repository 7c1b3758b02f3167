package docstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store backend. It is the default for
// single-server deployments and the substrate the engine is tested against.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Doc
	subs        map[int]*memSub
	nextSubID   int

	// NowFunc supplies the server-assigned write timestamp.
	NowFunc func() time.Time
}

type memSub struct {
	collection string
	docID      string // empty for whole-collection subscriptions
	collCh     chan map[string]Doc
	docCh      chan Doc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Doc),
		subs:        make(map[int]*memSub),
		NowFunc:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) (map[string]Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.collections[collection]), nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Doc) error {
	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	now := s.NowFunc()
	for k, v := range resolveDoc(fields, now) {
		doc[k] = v
	}
	s.notifyLocked(collection, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CreateIfAbsent(ctx context.Context, collection, id string, doc Doc) (bool, error) {
	s.mu.Lock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Doc)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		s.mu.Unlock()
		return false, nil
	}
	coll[id] = clone(resolveDoc(doc, s.NowFunc()))
	s.notifyLocked(collection, id)
	s.mu.Unlock()
	return true, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (<-chan map[string]Doc, func()) {
	ch := make(chan map[string]Doc, 16)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = &memSub{collection: collection, collCh: ch}
	ch <- cloneAll(s.collections[collection])
	s.mu.Unlock()
	return ch, s.cancelFunc(id)
}

func (s *MemoryStore) SubscribeDoc(ctx context.Context, collection, docID string) (<-chan Doc, func()) {
	ch := make(chan Doc, 16)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = &memSub{collection: collection, docID: docID, docCh: ch}
	ch <- clone(s.collections[collection][docID])
	s.mu.Unlock()
	return ch, s.cancelFunc(id)
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) cancelFunc(id int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				if sub.collCh != nil {
					close(sub.collCh)
				}
				if sub.docCh != nil {
					close(sub.docCh)
				}
			}
			s.mu.Unlock()
		})
	}
}

// notifyLocked pushes fresh snapshots to every subscriber watching the changed
// document. Slow consumers whose buffers are full miss intermediate snapshots
// but always receive a later, newer one.
func (s *MemoryStore) notifyLocked(collection, docID string) {
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		if sub.docID != "" {
			if sub.docID != docID {
				continue
			}
			snapshot := clone(s.collections[collection][docID])
			select {
			case sub.docCh <- snapshot:
			default:
				drainOneDoc(sub.docCh)
				sub.docCh <- snapshot
			}
			continue
		}
		snapshot := cloneAll(s.collections[collection])
		select {
		case sub.collCh <- snapshot:
		default:
			drainOneColl(sub.collCh)
			sub.collCh <- snapshot
		}
	}
}

func drainOneDoc(ch chan Doc) {
	select {
	case <-ch:
	default:
	}
}

func drainOneColl(ch chan map[string]Doc) {
	select {
	case <-ch:
	default:
	}
}
