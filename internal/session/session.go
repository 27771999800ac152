package session

import (
	"context"
	"sync"

	"cdpjobstats/internal/delivery"
	"cdpjobstats/internal/identity"
	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/matcher"
	"cdpjobstats/internal/mount"
	"cdpjobstats/internal/navigation"
	"cdpjobstats/internal/store"
	"cdpjobstats/internal/waiter"
	"cdpjobstats/pkg/model"
)

// Config 会话配置
type Config struct {
	APIPath    string
	QueryParam string
	Badge      mount.Options
}

// Session 单个页面的上下文对象，持有该页面的全部可变状态
type Session struct {
	ID     model.SessionID
	Target model.TargetID

	Address  *identity.Address
	Resolver *identity.Resolver
	Matcher  *matcher.Matcher
	Store    *store.Store
	Waiters  *waiter.Registry
	Hub      *delivery.Hub
	Mount    *mount.Controller
	Nav      *navigation.Watcher

	log     logger.Logger
	once    sync.Once
	cancel  context.CancelFunc
	stopped chan struct{}

	mu      sync.Mutex
	closers []func()
	closed  bool
}

// New 创建会话，href 为页面当前地址
func New(id model.SessionID, target model.TargetID, href string, doc mount.Document, cfg Config, l logger.Logger) *Session {
	if l == nil {
		l = logger.NewNop()
	}
	l = l.With("session", string(id))

	addr := identity.NewAddress(href)
	resolver := identity.NewResolver(addr, cfg.QueryParam)
	st := store.New()
	waiters := waiter.New(st, resolver)
	ctrl := mount.New(doc, cfg.Badge, l)

	s := &Session{
		ID:       id,
		Target:   target,
		Address:  addr,
		Resolver: resolver,
		Matcher:  matcher.New(resolver, cfg.APIPath),
		Store:    st,
		Waiters:  waiters,
		Mount:    ctrl,
		log:      l,
		stopped:  make(chan struct{}),
	}
	s.Hub = delivery.New(delivery.Config{Store: st, Waiters: waiters, Renderer: ctrl, Current: resolver, Logger: l})
	s.Nav = navigation.New(navigation.Config{
		Address:  addr,
		Resolver: resolver,
		Store:    st,
		Waiters:  waiters,
		Mount:    ctrl,
		Logger:   l,
	})
	return s
}

// Match 判断地址是否属于当前职位
func (s *Session) Match(url string) matcher.Result {
	return s.Matcher.Match(url)
}

// Deliver 提交匹配响应
func (s *Session) Deliver(body model.Body, url string, source model.Source, entity model.EntityID) model.InterceptedResponse {
	return s.Hub.Deliver(body, url, source, entity)
}

// Install 启动挂载控制器与导航监听器，重复调用无效果；返回是否为首次安装
func (s *Session) Install(ctx context.Context, addresses <-chan string) bool {
	installed := false
	s.once.Do(func() {
		installed = true
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Mount.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			_ = s.Nav.Run(ctx, addresses)
		}()
		go func() {
			wg.Wait()
			close(s.stopped)
		}()
		s.log.Info("拦截器已安装，等待职位接口响应", "href", s.Address.Href())
	})
	return installed
}

// OnClose 注册关闭会话时执行的清理函数，按注册的逆序执行
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close 停止会话内的后台任务并执行清理函数，重复调用无效果
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	s.once.Do(func() {}) // 之后的 Install 不再启动后台任务
	if s.cancel != nil {
		s.cancel()
		<-s.stopped
	}
	s.log.Info("页面会话已关闭")
}
