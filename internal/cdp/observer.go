package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/network"

	adapter "cdpjobstats/internal/adapter/cdp"
	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/matcher"
	"cdpjobstats/internal/reader"
	"cdpjobstats/pkg/model"
	"cdpjobstats/pkg/traffic"
)

// maxPending 同时跟踪的未完成请求上限，超出时丢弃最早发出的请求
const maxPending = 256

// pendingExchange 已发出、尚未加载完成的请求
type pendingExchange struct {
	match    matcher.Result
	exchange *traffic.Exchange
	source   model.Source
	seq      uint64
}

// observer 跟随 Network 域事件，在加载完成后读取响应体。请求在发出时完成匹配
type observer struct {
	reader  reader.Reader
	pipe    Pipeline
	log     logger.Logger
	timeout time.Duration
	events  func(model.Event)

	mu      sync.Mutex
	pending map[network.RequestID]*pendingExchange
	seq     uint64
	limit   int
}

func newObserver(client reader.NetworkBodies, pipe Pipeline, timeout time.Duration, events func(model.Event), l logger.Logger) *observer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if events == nil {
		events = func(model.Event) {}
	}
	return &observer{
		reader:  reader.NewNetworkReader(client),
		pipe:    pipe,
		log:     l,
		timeout: timeout,
		events:  events,
		pending: make(map[network.RequestID]*pendingExchange),
		limit:   maxPending,
	}
}

// onRequest 记录请求发出时的匹配结果；重定向沿用同一请求ID，以最后一跳为准
func (o *observer) onRequest(id network.RequestID, url string) {
	m := o.pipe.Match(url)
	o.mu.Lock()
	defer o.mu.Unlock()
	if !m.Matched {
		delete(o.pending, id)
		return
	}
	o.seq++
	o.pending[id] = &pendingExchange{match: m, seq: o.seq}
	if len(o.pending) > o.limit {
		o.evictOldest()
	}
	o.events(model.Event{Type: "matched", URL: m.URL, EntityID: m.EntityID})
}

func (o *observer) onResponse(id network.RequestID, resourceType network.ResourceType, res network.Response) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[id]
	if !ok {
		return
	}
	source, ok := traffic.SourceFor(string(resourceType))
	if !ok {
		delete(o.pending, id)
		return
	}
	p.exchange = adapter.FromNetwork(id, resourceType, res)
	p.source = source
}

// onFinished 加载完成后读取并投递；没有响应头的请求直接丢弃
func (o *observer) onFinished(ctx context.Context, id network.RequestID) {
	o.mu.Lock()
	p, ok := o.pending[id]
	delete(o.pending, id)
	o.mu.Unlock()
	if !ok || p.exchange == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("处理网络事件异常", "url", p.match.URL, "panic", fmt.Sprint(r))
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	body, err := o.reader.Read(rctx, p.exchange)
	if err != nil {
		o.log.Warn("读取 network 响应失败", "url", p.match.URL, "error", err.Error())
		return
	}
	o.pipe.Deliver(body, p.match.URL, p.source, p.match.EntityID)
	o.events(model.Event{Type: "delivered", URL: p.match.URL, EntityID: p.match.EntityID})
}

// onFailed 失败或取消的请求不投递
func (o *observer) onFailed(id network.RequestID, reason string) {
	o.mu.Lock()
	p, ok := o.pending[id]
	delete(o.pending, id)
	o.mu.Unlock()
	if ok {
		o.log.Debug("请求失败，不投递", "url", p.match.URL, "reason", reason)
	}
}

// evictOldest 丢弃最早发出的请求，调用方持有 o.mu。浏览器漏发完成事件时条目不会一直留在表中
func (o *observer) evictOldest() {
	var oldest network.RequestID
	var seq uint64
	for id, p := range o.pending {
		if seq == 0 || p.seq < seq {
			oldest, seq = id, p.seq
		}
	}
	if p, ok := o.pending[oldest]; ok {
		delete(o.pending, oldest)
		o.log.Debug("未完成请求过多，丢弃最早的请求", "url", p.match.URL)
	}
}

func (o *observer) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// run 消费 Network 域事件直到 ctx 结束或连接关闭；读取响应体交给工作池
func (o *observer) run(ctx context.Context, client *cdp.Client, pool *workPool) error {
	sent, err := client.Network.RequestWillBeSent(ctx)
	if err != nil {
		return err
	}
	defer sent.Close()
	recv, err := client.Network.ResponseReceived(ctx)
	if err != nil {
		return err
	}
	defer recv.Close()
	done, err := client.Network.LoadingFinished(ctx)
	if err != nil {
		return err
	}
	defer done.Close()
	failed, err := client.Network.LoadingFailed(ctx)
	if err != nil {
		return err
	}
	defer failed.Close()

	// 保证四个事件流按浏览器发送顺序交付
	if err := cdp.Sync(sent, recv, done, failed); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sent.Ready():
			ev, err := sent.Recv()
			if err != nil {
				return err
			}
			o.onRequest(ev.RequestID, ev.Request.URL)
		case <-recv.Ready():
			ev, err := recv.Recv()
			if err != nil {
				return err
			}
			o.onResponse(ev.RequestID, ev.Type, ev.Response)
		case <-done.Ready():
			ev, err := done.Recv()
			if err != nil {
				return err
			}
			id := ev.RequestID
			if !pool.submit(func() { o.onFinished(ctx, id) }) {
				o.onFailed(id, "工作队列已满")
			}
		case <-failed.Ready():
			ev, err := failed.Recv()
			if err != nil {
				return err
			}
			o.onFailed(ev.RequestID, ev.ErrorText)
		}
	}
}
