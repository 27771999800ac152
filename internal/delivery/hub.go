package delivery

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/store"
	"cdpjobstats/internal/waiter"
	"cdpjobstats/pkg/model"
)

// Renderer 接收提取出的统计值，实现不得阻塞
type Renderer interface {
	Render(stats model.Stats)
}

// Current 页面当前显示的实体
type Current interface {
	Resolve() model.EntityID
}

// Hub 所有匹配响应的唯一入口：存储、渲染、广播、唤醒等待者
type Hub struct {
	store    *store.Store
	waiters  *waiter.Registry
	renderer Renderer
	current  Current
	log      logger.Logger
	now      func() time.Time

	deliverMu sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]chan model.InterceptedResponse
	nextSub int
}

// Config 配置选项
type Config struct {
	Store    *store.Store
	Waiters  *waiter.Registry
	Renderer Renderer
	// Current 为空时每次投递都渲染；否则只渲染属于当前实体的响应
	Current Current
	Logger  logger.Logger
}

// New 创建投递中心
func New(cfg Config) *Hub {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Hub{
		store:    cfg.Store,
		waiters:  cfg.Waiters,
		renderer: cfg.Renderer,
		current:  cfg.Current,
		log:      l,
		now:      time.Now,
		subs:     make(map[int]chan model.InterceptedResponse),
	}
}

// Deliver 提交一次匹配响应。渲染、广播、唤醒三个步骤互相隔离，
// 任一步骤 panic 只记录日志，不会传播给调用方
func (h *Hub) Deliver(body model.Body, url string, source model.Source, entity model.EntityID) model.InterceptedResponse {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	resp := model.InterceptedResponse{
		ID:         uuid.NewString(),
		Data:       body,
		URL:        url,
		Source:     source,
		EntityID:   entity,
		CapturedAt: h.now(),
	}
	h.store.Put(resp)

	h.guard("render", func() {
		stats := Extract(resp.Data)
		h.log.Info("提取到职位统计", "entityId", string(entity), "applies", stats.Applies.String(), "views", stats.Views.String())
		if h.renderer == nil {
			return
		}
		// 请求发出后页面已切换到其他职位，只缓存不渲染
		if h.current != nil {
			if cur := h.current.Resolve(); cur != entity {
				h.log.Debug("响应不属于当前职位，跳过渲染", "entityId", string(entity), "current", string(cur))
				return
			}
		}
		h.renderer.Render(stats)
	})
	h.guard("broadcast", func() { h.broadcast(resp) })
	h.guard("notify", func() {
		if h.waiters != nil {
			h.waiters.Notify(resp)
		}
	})
	return resp
}

// Subscribe 订阅投递广播；订阅者处理不及时时丢弃该条广播
func (h *Hub) Subscribe(buffer int) (<-chan model.InterceptedResponse, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.InterceptedResponse, buffer)

	h.subsMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.subsMu.Lock()
			delete(h.subs, id)
			h.subsMu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) broadcast(resp model.InterceptedResponse) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- resp:
		default:
			h.log.Warn("订阅者通道已满，丢弃广播", "subscriber", id, "entityId", string(resp.EntityID))
		}
	}
}

func (h *Hub) guard(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("投递步骤失败", "step", step, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
