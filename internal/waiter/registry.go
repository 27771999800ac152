package waiter

import (
	"context"
	"sync"

	"cdpjobstats/pkg/model"
)

// Options 等待选项
type Options struct {
	// Once 为 true 时忽略缓存，只等待下一次投递
	Once bool
}

// Cache 已投递响应的同步查询
type Cache interface {
	Get(id model.EntityID) (model.InterceptedResponse, bool)
}

// Current 当前实体ID的来源
type Current interface {
	Resolve() model.EntityID
}

type entry struct {
	ch chan model.InterceptedResponse
}

// Registry 按实体ID登记的等待者；每个等待者只被解决一次，解决时即从队列移除
type Registry struct {
	mu      sync.Mutex
	queues  map[model.EntityID][]*entry
	cache   Cache
	current Current
}

// New 创建等待者注册表
func New(cache Cache, current Current) *Registry {
	return &Registry{
		queues:  make(map[model.EntityID][]*entry),
		cache:   cache,
		current: current,
	}
}

// Ticket 一次等待的凭据
type Ticket struct {
	// C 在响应投递时可读，且只会收到一次
	C <-chan model.InterceptedResponse

	r   *Registry
	key model.EntityID
	e   *entry
}

// Cancel 撤销尚未解决的等待，已解决时无操作
func (t *Ticket) Cancel() {
	t.r.remove(t.key, t.e)
}

// Wait 等待指定实体的响应。id 为空时使用当前实体，仍为空则等待任意实体。
// 非 Once 且已有缓存时 C 立即可读。没有超时，需要限时请使用 Await 或 Cancel。
func (r *Registry) Wait(id model.EntityID, opts Options) *Ticket {
	e, key := r.enqueue(id, opts)
	return &Ticket{C: e.ch, r: r, key: key, e: e}
}

// Await 阻塞等待响应，ctx 结束时撤销登记
func (r *Registry) Await(ctx context.Context, id model.EntityID, opts Options) (model.InterceptedResponse, error) {
	t := r.Wait(id, opts)
	select {
	case resp := <-t.C:
		return resp, nil
	case <-ctx.Done():
		t.Cancel()
		// 撤销前可能已被解决
		select {
		case resp := <-t.C:
			return resp, nil
		default:
		}
		return model.InterceptedResponse{}, ctx.Err()
	}
}

// Notify 依登记顺序解决该实体的等待者，然后解决通配等待者
func (r *Registry) Notify(resp model.InterceptedResponse) {
	key := resp.EntityID
	if key == "" {
		key = model.WildcardKey
	}
	r.resolve(key, resp)
	if key != model.WildcardKey {
		r.resolve(model.WildcardKey, resp)
	}
}

// Pending 返回指定键下待解决的等待者数量
func (r *Registry) Pending(key model.EntityID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[key])
}

// enqueue 缓存检查与入队在同一把锁内完成，避免与 Notify 交错时丢失投递
func (r *Registry) enqueue(id model.EntityID, opts Options) (*entry, model.EntityID) {
	if id == "" && r.current != nil {
		id = r.current.Resolve()
	}
	e := &entry{ch: make(chan model.InterceptedResponse, 1)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !opts.Once && id != "" && r.cache != nil {
		if resp, ok := r.cache.Get(id); ok {
			e.ch <- resp
			return e, ""
		}
	}
	key := id
	if key == "" {
		key = model.WildcardKey
	}
	r.queues[key] = append(r.queues[key], e)
	return e, key
}

// resolve 先整体摘除队列再投递，投递过程中新的登记进入新队列
func (r *Registry) resolve(key model.EntityID, resp model.InterceptedResponse) {
	r.mu.Lock()
	list := r.queues[key]
	delete(r.queues, key)
	r.mu.Unlock()

	for _, e := range list {
		e.ch <- resp
	}
}

func (r *Registry) remove(key model.EntityID, target *entry) {
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.queues[key]
	for i, e := range list {
		if e == target {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.queues, key)
	} else {
		r.queues[key] = list
	}
}
