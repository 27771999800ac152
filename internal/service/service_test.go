package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cdpjobstats/internal/logger"
	"cdpjobstats/pkg/model"
)

func newTestService(t *testing.T, dsn string) *Service {
	t.Helper()
	s := New(Options{
		Defaults: model.SessionConfig{
			DevToolsURL:      "http://127.0.0.1:9222",
			Mode:             model.CaptureNetwork,
			APIPath:          "/voyager/api/jobs/",
			QueryParam:       "currentJobId",
			Concurrency:      4,
			ProcessTimeoutMS: 3000,
		},
		SqliteDSN:    dsn,
		SqlitePrefix: "test_",
	}, logger.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMergeFillsDefaults(t *testing.T) {
	s := newTestService(t, "")
	got := s.merge(model.SessionConfig{Target: "abc", Concurrency: 1})

	if got.Target != "abc" || got.Concurrency != 1 {
		t.Fatalf("explicit fields overwritten: %+v", got)
	}
	if got.Mode != model.CaptureNetwork || got.QueryParam != "currentJobId" || got.ProcessTimeoutMS != 3000 {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestMergeDefaultMode(t *testing.T) {
	s := New(Options{}, nil)
	if got := s.merge(model.SessionConfig{}); got.Mode != model.CaptureFetch {
		t.Fatalf("mode = %q, want fetch", got.Mode)
	}
}

func TestUnknownSession(t *testing.T) {
	s := newTestService(t, "")
	ctx := context.Background()

	if err := s.StopSession("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("StopSession = %v", err)
	}
	if _, err := s.LastResponse("nope", "42"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("LastResponse = %v", err)
	}
	if _, err := s.MostRecent("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("MostRecent = %v", err)
	}
	if _, err := s.WaitForResponse(ctx, "nope", "42", model.WaitOptions{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("WaitForResponse = %v", err)
	}
	if _, _, err := s.SubscribeResponses("nope", 1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("SubscribeResponses = %v", err)
	}
}

func TestHistory(t *testing.T) {
	s := newTestService(t, "file:"+t.Name()+"?mode=memory&cache=shared")
	j, err := s.openJournal()
	if err != nil {
		t.Fatalf("openJournal: %v", err)
	}
	r := model.InterceptedResponse{ID: "a", EntityID: "42", Source: model.SourceXHR, Data: model.Body{Text: "{}", JSON: true}}
	if err := j.Record(context.Background(), "s1", r); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.History(context.Background(), "s1", "42", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("history = %+v", got)
	}
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestService(t, "")
	if _, err := s.History(context.Background(), "s1", "", 0); err == nil {
		t.Fatal("History: want error when journal is disabled")
	}
}

func TestListTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"p1","type":"page","title":"Jobs","url":"https://www.linkedin.com/jobs/","webSocketDebuggerUrl":"ws://x/p1"},
			{"id":"w1","type":"service_worker","title":"sw","url":"https://www.linkedin.com/sw.js","webSocketDebuggerUrl":"ws://x/w1"}
		]`))
	}))
	defer srv.Close()

	s := newTestService(t, "")
	got, err := s.ListTargets(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" || got[0].Title != "Jobs" || got[0].IsCurrent {
		t.Fatalf("targets = %+v", got)
	}
}
