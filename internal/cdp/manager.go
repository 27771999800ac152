package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/mount"
	"cdpjobstats/pkg/model"
)

var (
	ErrNotAttached = errors.New("not attached")
	ErrNoTarget    = errors.New("no page target")
)

// Manager 单个页面目标的 CDP 连接，负责采集通道、DOM 边界、导航来源与页面镜像
type Manager struct {
	sid    model.SessionID
	cfg    model.SessionConfig
	events chan model.Event
	log    logger.Logger

	target model.TargetID
	conn   *rpcc.Conn
	client *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc
	pool   *workPool
	doc    *pageDocument
	wg     sync.WaitGroup

	pageOnce    sync.Once
	pageErr     error
	runtimeOnce sync.Once
	runtimeErr  error

	// 降级放行的计数，静默一段时间后汇总为一条告警
	degraded       atomic.Int64
	reportDegraded func(f func())
}

// pausedSource 暂停事件流
type pausedSource interface {
	Recv() (*fetch.RequestPausedReply, error)
}

// New 创建管理器，events 可为 nil
func New(sid model.SessionID, cfg model.SessionConfig, events chan model.Event, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sid:            sid,
		cfg:            cfg,
		events:         events,
		log:            l,
		ctx:            context.Background(),
		reportDegraded: debounce.New(time.Second),
	}
}

// ListTargets 列出浏览器中可附加的页面目标
func ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error) {
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		out = append(out, model.TargetInfo{
			ID:    model.TargetID(t.ID),
			Type:  string(t.Type),
			URL:   t.URL,
			Title: t.Title,
		})
	}
	return out, nil
}

// Attach 附加到配置的目标；未指定目标时选择第一个页面
func (m *Manager) Attach(ctx context.Context) error {
	targets, err := devtool.New(m.cfg.DevToolsURL).List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if m.cfg.Target == "" || string(m.cfg.Target) == t.ID {
			sel = t
			break
		}
	}
	if sel == nil {
		return ErrNoTarget
	}

	// 连接的生命周期独立于调用方的 ctx，由 Close 结束
	m.ctx, m.cancel = context.WithCancel(context.Background())
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		m.cancel()
		return fmt.Errorf("dial %s: %w", sel.WebSocketDebuggerURL, err)
	}
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.target = model.TargetID(sel.ID)
	m.log = m.log.With("target", sel.ID)
	m.log.Info("已附加页面目标", "url", sel.URL, "title", sel.Title)
	return nil
}

// Target 已附加的目标ID
func (m *Manager) Target() model.TargetID { return m.target }

func (m *Manager) enablePage(ctx context.Context) error {
	m.pageOnce.Do(func() { m.pageErr = m.client.Page.Enable(ctx) })
	return m.pageErr
}

func (m *Manager) enableRuntime(ctx context.Context) error {
	m.runtimeOnce.Do(func() { m.runtimeErr = m.client.Runtime.Enable(ctx) })
	return m.runtimeErr
}

// Document 返回页面的 DOM 边界，并在当前文档与之后的新文档中安装结构变化监听
func (m *Manager) Document(ctx context.Context) (mount.Document, error) {
	if m.client == nil {
		return nil, ErrNotAttached
	}
	if m.doc != nil {
		return m.doc, nil
	}
	if err := m.enablePage(ctx); err != nil {
		return nil, fmt.Errorf("enable page: %w", err)
	}
	if err := m.enableRuntime(ctx); err != nil {
		return nil, fmt.Errorf("enable runtime: %w", err)
	}
	calls, err := m.client.Runtime.BindingCalled(m.ctx)
	if err != nil {
		return nil, err
	}
	if err := m.client.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(mutationBinding)); err != nil {
		calls.Close()
		return nil, fmt.Errorf("add binding: %w", err)
	}
	if _, err := m.client.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(observerScript)); err != nil {
		calls.Close()
		return nil, fmt.Errorf("add observer script: %w", err)
	}

	doc := newPageDocument(m.client.Runtime, m.log)
	if err := evaluate(ctx, m.client.Runtime, observerScript, nil); err != nil {
		calls.Close()
		return nil, fmt.Errorf("install observer: %w", err)
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		doc.watch(m.ctx, calls)
	}()
	m.doc = doc
	return doc, nil
}

// CurrentURL 读取页面当前地址
func (m *Manager) CurrentURL(ctx context.Context) (string, error) {
	if m.client == nil {
		return "", ErrNotAttached
	}
	var href string
	if err := evaluate(ctx, m.client.Runtime, hrefScript, &href); err != nil {
		return "", err
	}
	return href, nil
}

// Navigations 返回主框架的地址变化流
func (m *Manager) Navigations(ctx context.Context) (<-chan string, error) {
	if m.client == nil {
		return nil, ErrNotAttached
	}
	if err := m.enablePage(ctx); err != nil {
		return nil, fmt.Errorf("enable page: %w", err)
	}
	return navigations(m.ctx, m.client, m.log)
}

// EnableCapture 按配置的模式开启采集通道，匹配与投递交给 pipe
func (m *Manager) EnableCapture(ctx context.Context, pipe Pipeline) error {
	if m.client == nil {
		return ErrNotAttached
	}
	m.pool = newWorkPool(m.cfg.Concurrency, m.cfg.PendingCapacity)
	timeout := time.Duration(m.cfg.ProcessTimeoutMS) * time.Millisecond

	switch m.cfg.Mode {
	case model.CaptureNetwork:
		if err := m.client.Network.Enable(ctx, nil); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		obs := newObserver(m.client.Network, pipe, timeout, m.sendEvent, m.log)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := obs.run(m.ctx, m.client, m.pool); err != nil && m.ctx.Err() == nil {
				m.log.Err(err, "网络事件流中断")
			}
		}()
	default:
		pattern := "*"
		if m.cfg.APIPath != "" {
			pattern = "*" + m.cfg.APIPath + "*"
		}
		patterns := []fetch.RequestPattern{
			{URLPattern: &pattern, RequestStage: fetch.RequestStageResponse},
		}
		if err := m.client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
			return fmt.Errorf("enable fetch: %w", err)
		}
		it := newInterceptor(m.client.Fetch, pipe, timeout, m.cfg.BodySizeThreshold, m.sendEvent, m.log)
		rp, err := m.client.Fetch.RequestPaused(m.ctx)
		if err != nil {
			return fmt.Errorf("subscribe request paused: %w", err)
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer rp.Close()
			m.consume(it, rp)
		}()
	}
	m.log.Info("采集通道已开启", "mode", string(m.cfg.Mode))
	return nil
}

// consume 消费暂停事件，交给工作池处理；队列已满时直接放行。事件流结束时返回
func (m *Manager) consume(it *interceptor, rp pausedSource) {
	for {
		ev, err := rp.Recv()
		if err != nil {
			return
		}
		if !m.pool.submit(func() { it.handle(m.ctx, ev) }) {
			m.degradeAndContinue(it, ev)
		}
	}
}

func (m *Manager) degradeAndContinue(it *interceptor, ev *fetch.RequestPausedReply) {
	m.log.Debug("工作队列已满，直接放行", "url", ev.Request.URL)
	it.release(m.ctx, ev)
	m.degraded.Add(1)
	m.reportDegraded(m.flushDegraded)
	m.sendEvent(model.Event{Type: "degraded", URL: ev.Request.URL})
}

func (m *Manager) flushDegraded() {
	if n := m.degraded.Swap(0); n > 0 {
		m.log.Warn("工作队列已满，部分响应未读取直接放行", "count", n)
	}
}

// Mirror 将订阅到的响应同步到页面，并安装页面内等待接口
func (m *Manager) Mirror(ctx context.Context, responses <-chan model.InterceptedResponse) error {
	if m.client == nil {
		return ErrNotAttached
	}
	if err := m.enablePage(ctx); err != nil {
		return fmt.Errorf("enable page: %w", err)
	}
	mr := &mirror{rt: m.client.Runtime, log: m.log}
	src := fmt.Sprintf(pageAPIScript, jsArg(m.cfg.QueryParam))
	if _, err := m.client.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(src)); err != nil {
		return fmt.Errorf("add page api script: %w", err)
	}
	if err := mr.install(ctx, m.cfg.QueryParam); err != nil {
		return fmt.Errorf("install page api: %w", err)
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		mr.run(m.ctx, responses)
	}()
	return nil
}

func (m *Manager) sendEvent(ev model.Event) {
	if m.events == nil {
		return
	}
	ev.Session = m.sid
	ev.Target = m.target
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	select {
	case m.events <- ev:
	default:
	}
}

// Close 停止采集并断开连接
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	var err error
	if m.client != nil && m.cfg.Mode != model.CaptureNetwork {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = m.client.Fetch.Disable(ctx)
		cancel()
	}
	if m.conn != nil {
		if cerr := m.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	m.wg.Wait()
	if m.pool != nil {
		m.pool.stop()
	}
	return err
}
