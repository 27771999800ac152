package cdp

import (
	"errors"
	"testing"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	"cdpjobstats/internal/logger"
	"cdpjobstats/pkg/model"
)

// pausedQueue 按顺序返回预设的暂停事件，耗尽后返回错误
type pausedQueue struct {
	evs []*fetch.RequestPausedReply
}

func (q *pausedQueue) Recv() (*fetch.RequestPausedReply, error) {
	if len(q.evs) == 0 {
		return nil, errors.New("stream closed")
	}
	ev := q.evs[0]
	q.evs = q.evs[1:]
	return ev, nil
}

func newTestManager(events chan model.Event) *Manager {
	return New("s1", model.SessionConfig{Mode: model.CaptureFetch}, events, logger.NewNop())
}

func TestConsumeHandsEventsToPool(t *testing.T) {
	f := &fakeFetch{body: `{"data":{}}`}
	p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
	m := newTestManager(nil)
	m.pool = newWorkPool(2, 4)

	q := &pausedQueue{evs: []*fetch.RequestPausedReply{
		paused(jobURL, network.ResourceTypeXHR, 200),
		paused("https://www.linkedin.com/feed/", network.ResourceTypeXHR, 200),
	}}
	m.consume(newTestInterceptor(f, p, 0), q)
	m.pool.stop()

	if n := len(p.deliveries()); n != 1 {
		t.Fatalf("deliveries = %d, want 1", n)
	}
	if _, _, resp := f.counts(); resp != 2 {
		t.Fatalf("continue response = %d, want 2", resp)
	}
}

func TestConsumeDegradesWhenPoolIsFull(t *testing.T) {
	f := &fakeFetch{body: `{"data":{}}`}
	p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
	events := make(chan model.Event, 8)
	m := newTestManager(events)
	m.pool = newWorkPool(1, 0)

	// 占住唯一的工作协程
	started, unblock := make(chan struct{}), make(chan struct{})
	if !m.pool.submit(func() {
		close(started)
		<-unblock
	}) {
		t.Fatal("first submit rejected")
	}
	<-started

	q := &pausedQueue{evs: []*fetch.RequestPausedReply{
		paused(jobURL, network.ResourceTypeXHR, 200),
		paused(jobURL, network.ResourceTypeXHR, 200),
		paused(jobURL, network.ResourceTypeXHR, 200),
	}}
	m.consume(newTestInterceptor(f, p, 0), q)
	close(unblock)
	m.pool.stop()

	if n := len(p.deliveries()); n != 0 {
		t.Fatalf("deliveries = %d, want 0", n)
	}
	if reads, _, resp := f.counts(); reads != 0 || resp != 3 {
		t.Fatalf("reads/continue = %d/%d, want 0/3", reads, resp)
	}
	if n := m.degraded.Load(); n != 3 {
		t.Fatalf("degraded count = %d, want 3", n)
	}
	for i := 0; i < 3; i++ {
		ev := <-events
		if ev.Type != "degraded" || ev.Session != "s1" || ev.URL != jobURL || ev.Timestamp == 0 {
			t.Fatalf("event = %+v", ev)
		}
	}

	m.flushDegraded()
	if n := m.degraded.Load(); n != 0 {
		t.Fatalf("degraded count after flush = %d, want 0", n)
	}
}

func TestSendEventDropsWhenFull(t *testing.T) {
	events := make(chan model.Event, 1)
	m := newTestManager(events)

	m.sendEvent(model.Event{Type: "matched"})
	m.sendEvent(model.Event{Type: "delivered"})

	if ev := <-events; ev.Type != "matched" {
		t.Fatalf("event = %+v, want matched", ev)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}
