package navigation

import (
	"context"

	"cdpjobstats/internal/delivery"
	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/mount"
	"cdpjobstats/internal/store"
	"cdpjobstats/internal/waiter"
	"cdpjobstats/pkg/model"
)

// Mounter 导航后需要的挂载控制能力
type Mounter interface {
	Render(stats model.Stats)
	Nudge()
	State() mount.State
}

// Resolver 当前实体ID来源
type Resolver interface {
	Resolve() model.EntityID
}

// Address 可更新的页面地址
type Address interface {
	Set(href string)
}

// Watcher 处理不刷新页面的地址变化
type Watcher struct {
	addr     Address
	resolver Resolver
	store    *store.Store
	waiters  *waiter.Registry
	mount    Mounter
	log      logger.Logger

	pending *waiter.Ticket
	stop    context.CancelFunc
}

// Config 配置选项
type Config struct {
	Address  Address
	Resolver Resolver
	Store    *store.Store
	Waiters  *waiter.Registry
	Mount    Mounter
	Logger   logger.Logger
}

// New 创建导航监听器
func New(cfg Config) *Watcher {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Watcher{
		addr:     cfg.Address,
		resolver: cfg.Resolver,
		store:    cfg.Store,
		waiters:  cfg.Waiters,
		mount:    cfg.Mount,
		log:      l,
	}
}

// Run 先处理初始地址，然后处理 addresses 中的每一次地址变化，直到 ctx 结束或通道关闭
func (w *Watcher) Run(ctx context.Context, addresses <-chan string) error {
	defer w.release()

	w.onChange(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case href, ok := <-addresses:
			if !ok {
				return nil
			}
			w.addr.Set(href)
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) onChange(ctx context.Context) {
	w.release()
	w.mount.Nudge()

	id := w.resolver.Resolve()
	if id == "" {
		w.log.Info("地址已变化，查询参数中没有当前职位")
		return
	}
	w.log.Info("地址已变化，等待匹配的职位接口响应", "entityId", string(id))

	w.pending = w.waiters.Wait(id, waiter.Options{Once: true})
	wctx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	go func(t *waiter.Ticket) {
		select {
		case resp := <-t.C:
			w.log.Info("地址变化后收到匹配响应", "entityId", string(resp.EntityID), "url", resp.URL, "source", string(resp.Source))
		case <-wctx.Done():
		}
	}(w.pending)

	// 已见过的职位不会再有新的网络请求，直接用缓存重新渲染
	if last, ok := w.store.Get(id); ok {
		w.mount.Render(delivery.Extract(last.Data))
		return
	}
	if w.mount.State() == mount.Mounted {
		w.mount.Render(model.Stats{})
	}
}

// release 撤销上一次导航留下的一次性等待
func (w *Watcher) release() {
	if w.pending != nil {
		w.pending.Cancel()
		w.pending = nil
	}
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
}
