package cdp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mafredri/cdp/protocol/fetch"

	adapter "cdpjobstats/internal/adapter/cdp"
	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/reader"
	"cdpjobstats/pkg/model"
	"cdpjobstats/pkg/traffic"
)

// fetchClient Fetch 域中拦截器用到的方法，cdp.Fetch 满足该接口
type fetchClient interface {
	reader.FetchBodies
	ContinueRequest(ctx context.Context, args *fetch.ContinueRequestArgs) error
	ContinueResponse(ctx context.Context, args *fetch.ContinueResponseArgs) error
}

// interceptor 处理响应阶段的暂停事件。无论读取成功与否，每个暂停的请求都恰好放行一次
type interceptor struct {
	client    fetchClient
	reader    reader.Reader
	pipe      Pipeline
	log       logger.Logger
	timeout   time.Duration
	bodyLimit int64
	events    func(model.Event)
}

func newInterceptor(client fetchClient, pipe Pipeline, timeout time.Duration, bodyLimit int64, events func(model.Event), l logger.Logger) *interceptor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if events == nil {
		events = func(model.Event) {}
	}
	return &interceptor{
		client:    client,
		reader:    reader.NewFetchReader(client),
		pipe:      pipe,
		log:       l,
		timeout:   timeout,
		bodyLimit: bodyLimit,
		events:    events,
	}
}

// handle 处理一次拦截事件
func (it *interceptor) handle(parent context.Context, ev *fetch.RequestPausedReply) {
	ctx, cancel := context.WithTimeout(parent, it.timeout)
	defer cancel()

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		it.release(parent, ev)
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			it.log.Error("处理拦截事件异常", "url", ev.Request.URL, "panic", fmt.Sprint(r))
		}
	}()

	// 只注册了响应阶段，请求阶段的暂停直接放行
	if ev.ResponseStatusCode == nil && ev.ResponseErrorReason == nil {
		return
	}
	if ev.ResponseErrorReason != nil {
		it.log.Debug("响应已中止，不投递", "url", ev.Request.URL, "reason", string(*ev.ResponseErrorReason))
		return
	}

	ex := adapter.FromPaused(ev)
	source, ok := traffic.SourceFor(ex.ResourceType)
	if !ok {
		return
	}
	if ex.StatusCode >= 300 && ex.StatusCode < 400 {
		// 重定向响应没有可读取的响应体
		return
	}

	m := it.pipe.Match(ex.URL)
	if !m.Matched {
		return
	}
	it.events(model.Event{Type: "matched", URL: m.URL, EntityID: m.EntityID})

	if it.tooLarge(ex) {
		it.log.Warn("响应体超过阈值，跳过读取", "url", m.URL, "limit", it.bodyLimit)
		return
	}

	body, err := it.reader.Read(ctx, ex)
	release()
	if err != nil {
		it.log.Warn("读取 fetch 响应失败", "url", m.URL, "error", err.Error())
		return
	}

	it.pipe.Deliver(body, m.URL, source, m.EntityID)
	it.events(model.Event{Type: "delivered", URL: m.URL, EntityID: m.EntityID})
}

// release 放行暂停的请求；使用独立超时，避免处理超时导致页面请求悬挂
func (it *interceptor) release(parent context.Context, ev *fetch.RequestPausedReply) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), time.Second)
	defer cancel()

	var err error
	if ev.ResponseStatusCode == nil && ev.ResponseErrorReason == nil {
		err = it.client.ContinueRequest(ctx, fetch.NewContinueRequestArgs(ev.RequestID))
	} else {
		err = it.client.ContinueResponse(ctx, fetch.NewContinueResponseArgs(ev.RequestID))
	}
	if err != nil {
		it.log.Err(err, "放行请求失败", "requestID", string(ev.RequestID))
	}
}

func (it *interceptor) tooLarge(ex *traffic.Exchange) bool {
	if it.bodyLimit <= 0 {
		return false
	}
	n, err := strconv.ParseInt(ex.Headers.Get("content-length"), 10, 64)
	return err == nil && n > it.bodyLimit
}
