package cdp

import "sync"

// workPool 固定数量的工作协程与有界等待队列
type workPool struct {
	mu     sync.RWMutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup
}

func newWorkPool(workers, capacity int) *workPool {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &workPool{tasks: make(chan func(), capacity)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for fn := range p.tasks {
				fn()
			}
		}()
	}
	return p
}

// submit 非阻塞提交，队列已满或已停止时返回 false
func (p *workPool) submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- fn:
		return true
	default:
		return false
	}
}

// stop 停止接收新任务并等待已提交的任务完成
func (p *workPool) stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
