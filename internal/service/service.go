package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"cdpjobstats/internal/cdp"
	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/mount"
	"cdpjobstats/internal/session"
	"cdpjobstats/internal/storage"
	"cdpjobstats/internal/waiter"
	"cdpjobstats/pkg/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoResponse      = errors.New("no response captured")
)

// Options 服务级选项，会话配置中未填写的字段以此为准
type Options struct {
	Defaults     model.SessionConfig
	Badge        mount.Options
	SqliteDSN    string
	SqlitePrefix string
}

// Service 服务实现，持有全部页面会话
type Service struct {
	opts     Options
	sessions *session.Manager
	events   chan model.Event
	log      logger.Logger

	journalOnce sync.Once
	journal     *storage.Journal
	journalErr  error
}

// New 创建服务
func New(opts Options, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{
		opts:     opts,
		sessions: session.NewManager(l),
		events:   make(chan model.Event, 256),
		log:      l,
	}
}

func (s *Service) openJournal() (*storage.Journal, error) {
	s.journalOnce.Do(func() {
		if s.opts.SqliteDSN == "" {
			return
		}
		s.journal, s.journalErr = storage.Open(s.opts.SqliteDSN, s.opts.SqlitePrefix, s.log)
	})
	return s.journal, s.journalErr
}

// merge 以服务默认值补全会话配置
func (s *Service) merge(cfg model.SessionConfig) model.SessionConfig {
	d := s.opts.Defaults
	if cfg.DevToolsURL == "" {
		cfg.DevToolsURL = d.DevToolsURL
	}
	if cfg.Target == "" {
		cfg.Target = d.Target
	}
	if cfg.Mode == "" {
		cfg.Mode = d.Mode
	}
	if cfg.Mode == "" {
		cfg.Mode = model.CaptureFetch
	}
	if cfg.APIPath == "" {
		cfg.APIPath = d.APIPath
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = d.QueryParam
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.PendingCapacity <= 0 {
		cfg.PendingCapacity = d.PendingCapacity
	}
	if cfg.BodySizeThreshold <= 0 {
		cfg.BodySizeThreshold = d.BodySizeThreshold
	}
	if cfg.ProcessTimeoutMS <= 0 {
		cfg.ProcessTimeoutMS = d.ProcessTimeoutMS
	}
	return cfg
}

// StartSession 附加页面并安装整条管线：DOM 边界、会话、导航、采集、页面镜像与流水
func (s *Service) StartSession(ctx context.Context, cfg model.SessionConfig) (model.SessionID, error) {
	cfg = s.merge(cfg)
	id := model.SessionID(uuid.New().String())
	l := s.log.With("sessionID", string(id))

	mgr := cdp.New(id, cfg, s.events, l)
	if err := mgr.Attach(ctx); err != nil {
		return "", fmt.Errorf("attach: %w", err)
	}
	fail := func(err error) (model.SessionID, error) {
		if cerr := mgr.Close(); cerr != nil {
			l.Err(cerr, "断开连接失败")
		}
		return "", err
	}

	doc, err := mgr.Document(ctx)
	if err != nil {
		return fail(fmt.Errorf("install document: %w", err))
	}
	href, err := mgr.CurrentURL(ctx)
	if err != nil {
		return fail(fmt.Errorf("read location: %w", err))
	}

	sess := session.New(id, mgr.Target(), href, doc, session.Config{
		APIPath:    cfg.APIPath,
		QueryParam: cfg.QueryParam,
		Badge:      s.opts.Badge,
	}, l)

	navs, err := mgr.Navigations(ctx)
	if err != nil {
		return fail(fmt.Errorf("watch navigation: %w", err))
	}
	sess.Install(context.Background(), navs)
	sess.OnClose(func() {
		if err := mgr.Close(); err != nil {
			l.Err(err, "断开连接失败")
		}
	})

	if err := mgr.EnableCapture(ctx, sess); err != nil {
		sess.Close()
		return "", fmt.Errorf("enable capture: %w", err)
	}

	mirrored, stopMirror := sess.Hub.Subscribe(64)
	sess.OnClose(stopMirror)
	if err := mgr.Mirror(ctx, mirrored); err != nil {
		// 页面镜像失败不影响徽章与采集
		l.Warn("页面镜像安装失败", "error", err.Error())
	}

	if j, err := s.openJournal(); err != nil {
		l.Warn("投递流水不可用", "error", err.Error())
	} else if j != nil {
		jctx, cancel := context.WithCancel(context.Background())
		recorded, stop := sess.Hub.Subscribe(256)
		done := make(chan struct{})
		go func() {
			defer close(done)
			j.Run(jctx, id, recorded)
		}()
		sess.OnClose(func() {
			stop()
			cancel()
			<-done
		})
	}

	s.sessions.Add(sess)
	return id, nil
}

// StopSession 停止并移除会话
func (s *Service) StopSession(id model.SessionID) error {
	if !s.sessions.Delete(id) {
		return ErrSessionNotFound
	}
	return nil
}

// ListTargets 列出可附加的页面
func (s *Service) ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error) {
	if devtoolsURL == "" {
		devtoolsURL = s.opts.Defaults.DevToolsURL
	}
	targets, err := cdp.ListTargets(ctx, devtoolsURL)
	if err != nil {
		return nil, err
	}
	attached := make(map[model.TargetID]bool)
	for _, sess := range s.sessions.List() {
		attached[sess.Target] = true
	}
	for i := range targets {
		targets[i].IsCurrent = attached[targets[i].ID]
	}
	return targets, nil
}

// WaitForResponse 等待指定职位的响应；entity 为空时使用页面当前职位，为 "*" 时等待任意职位
func (s *Service) WaitForResponse(ctx context.Context, id model.SessionID, entity model.EntityID, opts model.WaitOptions) (model.InterceptedResponse, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return model.InterceptedResponse{}, ErrSessionNotFound
	}
	return sess.Waiters.Await(ctx, entity, waiter.Options{Once: opts.Once})
}

// LastResponse 返回指定职位最近一次响应
func (s *Service) LastResponse(id model.SessionID, entity model.EntityID) (model.InterceptedResponse, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return model.InterceptedResponse{}, ErrSessionNotFound
	}
	r, ok := sess.Store.Get(entity)
	if !ok {
		return model.InterceptedResponse{}, ErrNoResponse
	}
	return r, nil
}

// MostRecent 返回会话内最近一次响应，不区分职位
func (s *Service) MostRecent(id model.SessionID) (model.InterceptedResponse, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return model.InterceptedResponse{}, ErrSessionNotFound
	}
	r, ok := sess.Store.Latest()
	if !ok {
		return model.InterceptedResponse{}, ErrNoResponse
	}
	return r, nil
}

// SubscribeResponses 订阅会话内的每一次投递
func (s *Service) SubscribeResponses(id model.SessionID, buffer int) (<-chan model.InterceptedResponse, func(), error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	ch, cancel := sess.Hub.Subscribe(buffer)
	return ch, cancel, nil
}

// SubscribeEvents 订阅采集事件
func (s *Service) SubscribeEvents() <-chan model.Event {
	return s.events
}

// History 查询投递流水，按时间倒序
func (s *Service) History(ctx context.Context, id model.SessionID, entity model.EntityID, limit int) ([]model.InterceptedResponse, error) {
	j, err := s.openJournal()
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, errors.New("journal disabled")
	}
	rows, err := j.History(ctx, id, entity, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.InterceptedResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Response())
	}
	return out, nil
}

// Close 停止全部会话并关闭流水库
func (s *Service) Close() error {
	s.sessions.CloseAll()
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}
