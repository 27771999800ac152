package session

import (
	"sync"

	"cdpjobstats/internal/logger"
	"cdpjobstats/pkg/model"
)

// Manager 全局会话管理器，负责会话的登记与关闭
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.SessionID]*Session),
		log:      l,
	}
}

// Add 登记会话；同一ID已有会话时先关闭旧会话
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	old := m.sessions[s.ID]
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if old != nil && old != s {
		old.Close()
	}
	m.log.Info("登记页面会话", "sessionID", string(s.ID), "target", string(s.Target))
}

// Get 获取会话
func (m *Manager) Get(id model.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 移除并关闭会话，返回会话是否存在
func (m *Manager) Delete(id model.SessionID) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	// 关闭会等待后台任务退出，不能持有锁
	s.Close()
	m.log.Info("销毁页面会话", "sessionID", string(id))
	return true
}

// CloseAll 关闭并移除全部会话
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[model.SessionID]*Session)
	m.mu.Unlock()

	for id, s := range all {
		s.Close()
		m.log.Info("销毁页面会话", "sessionID", string(id))
	}
}

// List 返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}
