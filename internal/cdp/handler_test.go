package cdp

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/matcher"
	"cdpjobstats/pkg/model"
)

type fakeFetch struct {
	mu        sync.Mutex
	body      string
	base64    bool
	bodyErr   error
	reads     int
	requests  int
	responses int
	panicRead bool
}

func (f *fakeFetch) GetResponseBody(ctx context.Context, args *fetch.GetResponseBodyArgs) (*fetch.GetResponseBodyReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.panicRead {
		panic("boom")
	}
	if f.bodyErr != nil {
		return nil, f.bodyErr
	}
	return &fetch.GetResponseBodyReply{Body: f.body, Base64Encoded: f.base64}, nil
}

func (f *fakeFetch) ContinueRequest(ctx context.Context, args *fetch.ContinueRequestArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return nil
}

func (f *fakeFetch) ContinueResponse(ctx context.Context, args *fetch.ContinueResponseArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
	return nil
}

func (f *fakeFetch) counts() (reads, requests, responses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads, f.requests, f.responses
}

type delivered struct {
	body   model.Body
	url    string
	source model.Source
	entity model.EntityID
}

type fakePipe struct {
	mu     sync.Mutex
	entity model.EntityID
	marker string
	out    []delivered
}

func (p *fakePipe) Match(url string) matcher.Result {
	if p.marker == "" || !strings.Contains(url, p.marker) {
		return matcher.Result{}
	}
	return matcher.Result{Matched: true, EntityID: p.entity, URL: url}
}

func (p *fakePipe) Deliver(body model.Body, url string, source model.Source, entity model.EntityID) model.InterceptedResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, delivered{body: body, url: url, source: source, entity: entity})
	return model.InterceptedResponse{Data: body, URL: url, Source: source, EntityID: entity}
}

func (p *fakePipe) deliveries() []delivered {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]delivered(nil), p.out...)
}

const jobURL = "https://www.linkedin.com/voyager/api/jobs/42/details"

func paused(url string, rt network.ResourceType, status int, headers ...fetch.HeaderEntry) *fetch.RequestPausedReply {
	ev := &fetch.RequestPausedReply{
		RequestID:       "req-1",
		Request:         network.Request{URL: url, Method: "GET"},
		ResourceType:    rt,
		ResponseHeaders: headers,
	}
	if status > 0 {
		ev.ResponseStatusCode = &status
	}
	return ev
}

func newTestInterceptor(f *fakeFetch, p *fakePipe, limit int64) *interceptor {
	return newInterceptor(f, p, time.Second, limit, nil, logger.NewNop())
}

func TestInterceptorDeliversMatchedXHR(t *testing.T) {
	f := &fakeFetch{body: base64.StdEncoding.EncodeToString([]byte(`{"data":{"applies":5,"views":9}}`)), base64: true}
	p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
	it := newTestInterceptor(f, p, 0)

	it.handle(context.Background(), paused(jobURL, network.ResourceTypeXHR, 200,
		fetch.HeaderEntry{Name: "Content-Type", Value: "application/json"}))

	got := p.deliveries()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].source != model.SourceXHR || got[0].entity != "42" || got[0].url != jobURL {
		t.Fatalf("delivery = %+v", got[0])
	}
	if !got[0].body.JSON || got[0].body.Text != `{"data":{"applies":5,"views":9}}` {
		t.Fatalf("body = %+v", got[0].body)
	}
	if _, req, resp := f.counts(); req != 0 || resp != 1 {
		t.Fatalf("continue request/response = %d/%d, want 0/1", req, resp)
	}
}

func TestInterceptorFetchSource(t *testing.T) {
	f := &fakeFetch{body: `{"data":{}}`}
	p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
	newTestInterceptor(f, p, 0).handle(context.Background(), paused(jobURL, network.ResourceTypeFetch, 200))

	got := p.deliveries()
	if len(got) != 1 || got[0].source != model.SourceFetch {
		t.Fatalf("deliveries = %+v, want one network-fetch", got)
	}
}

func TestInterceptorAlwaysContinuesOnce(t *testing.T) {
	tests := []struct {
		name      string
		fetch     *fakeFetch
		ev        *fetch.RequestPausedReply
		limit     int64
		wantReads int
	}{
		{
			name:  "not matched",
			fetch: &fakeFetch{body: "{}"},
			ev:    paused("https://www.linkedin.com/feed/", network.ResourceTypeXHR, 200),
		},
		{
			name:  "document resource",
			fetch: &fakeFetch{body: "{}"},
			ev:    paused(jobURL, network.ResourceTypeDocument, 200),
		},
		{
			name:  "redirect",
			fetch: &fakeFetch{body: "{}"},
			ev:    paused(jobURL, network.ResourceTypeXHR, 302),
		},
		{
			name:      "read error",
			fetch:     &fakeFetch{bodyErr: errors.New("no body")},
			ev:        paused(jobURL, network.ResourceTypeXHR, 200),
			wantReads: 1,
		},
		{
			name:      "panic while reading",
			fetch:     &fakeFetch{panicRead: true},
			ev:        paused(jobURL, network.ResourceTypeXHR, 200),
			wantReads: 1,
		},
		{
			name:  "oversize",
			fetch: &fakeFetch{body: "{}"},
			ev:    paused(jobURL, network.ResourceTypeXHR, 200, fetch.HeaderEntry{Name: "Content-Length", Value: "2048"}),
			limit: 1024,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
			newTestInterceptor(tt.fetch, p, tt.limit).handle(context.Background(), tt.ev)

			if n := len(p.deliveries()); n != 0 {
				t.Fatalf("deliveries = %d, want 0", n)
			}
			reads, req, resp := tt.fetch.counts()
			if reads != tt.wantReads {
				t.Fatalf("reads = %d, want %d", reads, tt.wantReads)
			}
			if req+resp != 1 || resp != 1 {
				t.Fatalf("continue request/response = %d/%d, want 0/1", req, resp)
			}
		})
	}
}

func TestInterceptorAbortedResponse(t *testing.T) {
	f := &fakeFetch{body: "{}"}
	p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
	ev := paused(jobURL, network.ResourceTypeXHR, 0)
	reason := network.ErrorReasonAborted
	ev.ResponseErrorReason = &reason

	newTestInterceptor(f, p, 0).handle(context.Background(), ev)

	if n := len(p.deliveries()); n != 0 {
		t.Fatalf("deliveries = %d, want 0", n)
	}
	if reads, _, resp := f.counts(); reads != 0 || resp != 1 {
		t.Fatalf("reads/continue = %d/%d, want 0/1", reads, resp)
	}
}

func TestInterceptorRequestStageContinuesRequest(t *testing.T) {
	f := &fakeFetch{}
	p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
	newTestInterceptor(f, p, 0).handle(context.Background(), paused(jobURL, network.ResourceTypeXHR, 0))

	if _, req, resp := f.counts(); req != 1 || resp != 0 {
		t.Fatalf("continue request/response = %d/%d, want 1/0", req, resp)
	}
}

func TestInterceptorEvents(t *testing.T) {
	f := &fakeFetch{body: `{"data":{}}`}
	p := &fakePipe{entity: "42", marker: "/voyager/api/jobs/"}
	var types []string
	it := newInterceptor(f, p, time.Second, 0, func(ev model.Event) { types = append(types, ev.Type) }, logger.NewNop())

	it.handle(context.Background(), paused(jobURL, network.ResourceTypeXHR, 200))

	if len(types) != 2 || types[0] != "matched" || types[1] != "delivered" {
		t.Fatalf("events = %v, want [matched delivered]", types)
	}
}
