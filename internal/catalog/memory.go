package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

// MemoryStore holds master data in maps. It backs unit tests and single-node
// deployments; the postgres store is the shared-deployment variant.
type MemoryStore struct {
	mu           sync.RWMutex
	clients      map[id.ClientID]*Client
	products     map[id.ProductID]*Product
	methods      map[id.TestMethodID]*TestMethod
	productTests map[id.ProductID][]ProductTest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:      make(map[id.ClientID]*Client),
		products:     make(map[id.ProductID]*Product),
		methods:      make(map[id.TestMethodID]*TestMethod),
		productTests: make(map[id.ProductID][]ProductTest),
	}
}

// PutClient upserts a client record.
func (s *MemoryStore) PutClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clients[c.ID] = &cp
}

func (s *MemoryStore) PutProduct(p *Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
}

func (s *MemoryStore) PutTestMethod(m *TestMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.methods[m.ID] = &cp
}

func (s *MemoryStore) PutProductTest(pt ProductTest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productTests[pt.ProductID] = append(s.productTests[pt.ProductID], pt)
}

func (s *MemoryStore) GetClient(_ context.Context, clientID id.ClientID) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, productID id.ProductID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetTestMethod(_ context.Context, methodID id.TestMethodID) (*TestMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[methodID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListProductTests(_ context.Context, productID id.ProductID) ([]ProductTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assigned := append([]ProductTest{}, s.productTests[productID]...)
	sort.SliceStable(assigned, func(i, j int) bool {
		return assigned[i].SortOrder < assigned[j].SortOrder
	})
	return assigned, nil
}

func (s *MemoryStore) FindClientByName(_ context.Context, name string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindProductByName(_ context.Context, name string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindTestMethodByCode(_ context.Context, code string) (*TestMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.methods {
		if strings.EqualFold(m.Code, code) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
