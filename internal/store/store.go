package store

import (
	"sort"
	"sync"

	"cdpjobstats/pkg/model"
)

// Store 会话内的响应存储：每个实体保存最近一次响应，另有全局最近一次响应
type Store struct {
	mu     sync.RWMutex
	byID   map[model.EntityID]model.InterceptedResponse
	latest *model.InterceptedResponse
}

// New 创建响应存储
func New() *Store {
	return &Store{byID: make(map[model.EntityID]model.InterceptedResponse)}
}

// Put 写入最近响应；实体ID非空时同时覆盖该实体的响应
func (s *Store) Put(resp model.InterceptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &resp
	if resp.EntityID != "" {
		s.byID[resp.EntityID] = resp
	}
}

// Get 获取指定实体的最近响应
func (s *Store) Get(id model.EntityID) (model.InterceptedResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp, ok := s.byID[id]
	return resp, ok
}

// Latest 获取全局最近响应
func (s *Store) Latest() (model.InterceptedResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return model.InterceptedResponse{}, false
	}
	return *s.latest, true
}

// Entities 返回已有响应的实体ID（有序）
func (s *Store) Entities() []model.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]model.EntityID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
