package navigation

import (
	"context"
	"sync"
	"testing"
	"time"

	"cdpjobstats/internal/identity"
	"cdpjobstats/internal/mount"
	"cdpjobstats/internal/store"
	"cdpjobstats/internal/waiter"
	"cdpjobstats/pkg/model"
)

type fakeMounter struct {
	mu      sync.Mutex
	renders []model.Stats
	nudges  int
	state   mount.State
}

func (f *fakeMounter) Render(s model.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, s)
}

func (f *fakeMounter) Nudge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nudges++
}

func (f *fakeMounter) State() mount.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeMounter) snapshot() ([]model.Stats, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Stats(nil), f.renders...), f.nudges
}

type fixture struct {
	addr    *identity.Address
	store   *store.Store
	waiters *waiter.Registry
	mount   *fakeMounter
	navs    chan string
	done    chan error
	cancel  context.CancelFunc
}

func newFixture(t *testing.T, href string, seed ...model.InterceptedResponse) *fixture {
	t.Helper()
	addr := identity.NewAddress(href)
	resolver := identity.NewResolver(addr, "currentJobId")
	st := store.New()
	for _, r := range seed {
		st.Put(r)
	}
	f := &fixture{
		addr:    addr,
		store:   st,
		waiters: waiter.New(st, resolver),
		mount:   &fakeMounter{},
		navs:    make(chan string),
		done:    make(chan error, 1),
	}
	w := New(Config{Address: addr, Resolver: resolver, Store: st, Waiters: f.waiters, Mount: f.mount})
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- w.Run(ctx, f.navs) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestInitialAddressStartsOnceWait(t *testing.T) {
	f := newFixture(t, "https://www.linkedin.com/jobs/?currentJobId=42")
	eventually(t, "once wait", func() bool { return f.waiters.Pending("42") == 1 })

	renders, nudges := f.mount.snapshot()
	if len(renders) != 0 {
		t.Fatalf("renders = %v, want none without cache", renders)
	}
	if nudges != 1 {
		t.Fatalf("nudges = %d, want 1", nudges)
	}
}

func TestNavigationToCachedEntityRerenders(t *testing.T) {
	cached := model.InterceptedResponse{EntityID: "7", Data: model.Body{Text: `{"data":{"applies":3,"views":30}}`, JSON: true}}
	f := newFixture(t, "https://www.linkedin.com/feed/", cached)

	f.navs <- "https://www.linkedin.com/jobs/?currentJobId=7"
	eventually(t, "rerender", func() bool {
		renders, _ := f.mount.snapshot()
		return len(renders) == 1
	})
	renders, nudges := f.mount.snapshot()
	if renders[0].Applies.String() != "3" || renders[0].Views.String() != "30" {
		t.Fatalf("render = %+v, want cached 3/30", renders[0])
	}
	if nudges != 2 {
		t.Fatalf("nudges = %d, want 2", nudges)
	}
}

func TestNavigationReplacesOnceWait(t *testing.T) {
	f := newFixture(t, "https://www.linkedin.com/jobs/?currentJobId=1")
	eventually(t, "first wait", func() bool { return f.waiters.Pending("1") == 1 })

	f.navs <- "https://www.linkedin.com/jobs/?currentJobId=2"
	eventually(t, "second wait", func() bool { return f.waiters.Pending("2") == 1 })
	if n := f.waiters.Pending("1"); n != 0 {
		t.Fatalf("Pending(1) = %d after navigating away, want 0", n)
	}
}

func TestNavigationWithoutEntity(t *testing.T) {
	f := newFixture(t, "https://www.linkedin.com/jobs/?currentJobId=1")
	f.navs <- "https://www.linkedin.com/feed/"
	eventually(t, "nudge", func() bool {
		_, nudges := f.mount.snapshot()
		return nudges == 2
	})
	if n := f.waiters.Pending(model.WildcardKey) + f.waiters.Pending("1"); n != 0 {
		t.Fatalf("pending waiters = %d, want 0", n)
	}
}

func TestNavigationClearsStaleBadge(t *testing.T) {
	f := newFixture(t, "https://www.linkedin.com/feed/")
	f.mount.mu.Lock()
	f.mount.state = mount.Mounted
	f.mount.mu.Unlock()

	f.navs <- "https://www.linkedin.com/jobs/?currentJobId=99"
	eventually(t, "placeholder render", func() bool {
		renders, _ := f.mount.snapshot()
		return len(renders) == 1
	})
	renders, _ := f.mount.snapshot()
	if renders[0].Applies.String() != model.Placeholder || renders[0].Views.String() != model.Placeholder {
		t.Fatalf("render = %+v, want placeholders", renders[0])
	}
}

func TestRunStopsWhenAddressesClose(t *testing.T) {
	f := newFixture(t, "https://www.linkedin.com/jobs/?currentJobId=5")
	close(f.navs)
	select {
	case err := <-f.done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
		f.done <- nil
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after close")
	}
	if n := f.waiters.Pending("5"); n != 0 {
		t.Fatalf("Pending(5) = %d after stop, want 0", n)
	}
}
