package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mafredri/cdp/protocol/runtime"

	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/mount"
)

// evaluator 在页面中执行表达式，cdp.Runtime 满足该接口
type evaluator interface {
	Evaluate(ctx context.Context, args *runtime.EvaluateArgs) (*runtime.EvaluateReply, error)
}

// evaluate 执行表达式并将按值返回的结果解码到 out，out 为 nil 时忽略结果
func evaluate(ctx context.Context, rt evaluator, expr string, out any) error {
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true).SetAwaitPromise(true)
	reply, err := rt.Evaluate(ctx, args)
	if err != nil {
		return fmt.Errorf("runtime evaluate: %w", err)
	}
	if reply.ExceptionDetails != nil {
		return fmt.Errorf("page exception: %s", exceptionText(reply.ExceptionDetails))
	}
	if out == nil || len(reply.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result.Value, out); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	return nil
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != nil {
		return *d.Exception.Description
	}
	return d.Text
}

// jsArg 将 Go 值编码为可直接拼入脚本的 JS 字面量
func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// pageDocument 通过 Runtime 域实现挂载控制器所需的 DOM 边界
type pageDocument struct {
	rt  evaluator
	log logger.Logger

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func newPageDocument(rt evaluator, l logger.Logger) *pageDocument {
	return &pageDocument{rt: rt, log: l, subs: make(map[int]chan struct{})}
}

func (d *pageDocument) FindAnchor(ctx context.Context, selectors []string) (string, error) {
	var sel string
	if err := evaluate(ctx, d.rt, fmt.Sprintf(findAnchorScript, jsArg(selectors)), &sel); err != nil {
		return "", err
	}
	return sel, nil
}

func (d *pageDocument) BadgeAttached(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := evaluate(ctx, d.rt, fmt.Sprintf(attachedScript, jsArg(id)), &ok)
	return ok, err
}

func (d *pageDocument) UpdateBadge(ctx context.Context, b mount.Badge) (bool, error) {
	var ok bool
	expr := fmt.Sprintf(updateScript,
		jsArg(b), jsArg(mount.StyleID), jsArg(mount.BadgeStyle), jsArg(mount.StatClass), jsArg(mount.SepClass))
	err := evaluate(ctx, d.rt, expr, &ok)
	return ok, err
}

func (d *pageDocument) InsertBadge(ctx context.Context, anchor string, b mount.Badge) error {
	if anchor == "" {
		return errors.New("empty anchor selector")
	}
	expr := fmt.Sprintf(insertScript,
		jsArg(b), jsArg(mount.StyleID), jsArg(mount.BadgeStyle), jsArg(mount.StatClass), jsArg(mount.SepClass),
		jsArg(mount.WrapClass), jsArg(anchor))
	return evaluate(ctx, d.rt, expr, nil)
}

// Mutations 订阅结构变化；通知合并，订阅方来不及消费时不会阻塞
func (d *pageDocument) Mutations() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// mutated 向所有订阅方扇出一次变化通知
func (d *pageDocument) mutated() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// watch 消费页面绑定调用，直到 ctx 结束或连接关闭
func (d *pageDocument) watch(ctx context.Context, calls runtime.BindingCalledClient) {
	defer calls.Close()
	for {
		ev, err := calls.Recv()
		if err != nil {
			if ctx.Err() == nil {
				d.log.Debug("绑定调用流已关闭", "error", err.Error())
			}
			return
		}
		if ev.Name == mutationBinding {
			d.mutated()
		}
	}
}
