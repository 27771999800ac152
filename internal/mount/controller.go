package mount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cdpjobstats/internal/logger"
	"cdpjobstats/pkg/model"
)

// ErrAnchorNotFound 超时内未找到锚点
var ErrAnchorNotFound = errors.New("anchor not found")

// State 徽章挂载状态
type State int

const (
	Unmounted State = iota
	Mounted
)

func (s State) String() string {
	if s == Mounted {
		return "mounted"
	}
	return "unmounted"
}

// Options 挂载控制器选项
type Options struct {
	Selectors     []string
	AnchorTimeout time.Duration
	FrameInterval time.Duration
}

// Controller 维护徽章的挂载状态。所有 DOM 操作都在 Run 所在的 goroutine 中串行执行，
// 结构变化引起的检查每帧最多执行一次
type Controller struct {
	doc  Document
	opts Options
	log  logger.Logger

	mu       sync.Mutex
	badge    Badge
	rendered bool
	watching bool
	state    State

	kick  chan struct{}
	check chan struct{}

	// armed 为 true 时已有一次检查排在下一帧，期间的变化不再排队
	armMu sync.Mutex
	armed bool
}

// New 创建挂载控制器
func New(doc Document, opts Options, l logger.Logger) *Controller {
	if opts.AnchorTimeout <= 0 {
		opts.AnchorTimeout = 10 * time.Second
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 16 * time.Millisecond
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Controller{
		doc:   doc,
		opts:  opts,
		log:   l,
		kick:  make(chan struct{}, 1),
		check: make(chan struct{}, 1),
	}
}

// Render 记录最新内容并唤醒控制器，不阻塞调用方
func (c *Controller) Render(s model.Stats) {
	c.mu.Lock()
	c.badge = NewBadge(s)
	c.rendered = true
	c.mu.Unlock()
	signal(c.kick)
}

// Nudge 安排一次重新挂载检查（例如地址变化后）
func (c *Controller) Nudge() {
	c.arm()
}

// State 返回当前挂载状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Content 返回最近一次渲染的内容
func (c *Controller) Content() (Badge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badge, c.rendered
}

// Run 运行控制循环直到 ctx 结束
func (c *Controller) Run(ctx context.Context) error {
	muts, cancel := c.doc.Mutations()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.kick:
			c.mount(ctx)
		case _, ok := <-muts:
			if !ok {
				muts = nil
				continue
			}
			if c.isWatching() {
				c.arm()
			}
		case <-c.check:
			c.reattach(ctx)
		}
	}
}

// mount 已挂载时原地更新；否则等待锚点出现后插入并开始持续监视
func (c *Controller) mount(ctx context.Context) {
	b, ok := c.Content()
	if !ok {
		return
	}
	updated, err := c.doc.UpdateBadge(ctx, b)
	if err != nil {
		c.log.Err(err, "更新徽章失败")
		return
	}
	if updated {
		c.setState(Mounted)
		return
	}
	c.setState(Unmounted)

	anchor, err := c.waitAnchor(ctx)
	if err != nil {
		c.log.Debug("未找到锚点，本次渲染放弃", "error", err.Error())
		return
	}
	b, _ = c.Content()
	if err := c.doc.InsertBadge(ctx, anchor, b); err != nil {
		c.log.Err(err, "插入徽章失败", "anchor", anchor)
		return
	}

	c.mu.Lock()
	c.state = Mounted
	c.watching = true
	c.mu.Unlock()
	c.log.Debug("徽章已挂载", "anchor", anchor)
}

// reattach 徽章仍在文档中时什么都不做；被宿主框架移除时重新定位锚点并插入
func (c *Controller) reattach(ctx context.Context) {
	if !c.isWatching() {
		return
	}
	attached, err := c.doc.BadgeAttached(ctx, BadgeID)
	if err != nil {
		c.log.Debug("检查徽章失败", "error", err.Error())
		return
	}
	if attached {
		c.setState(Mounted)
		return
	}
	c.setState(Unmounted)

	anchor, err := c.doc.FindAnchor(ctx, c.opts.Selectors)
	if err != nil || anchor == "" {
		// 等待下一次结构变化再试
		return
	}
	b, _ := c.Content()
	if err := c.doc.InsertBadge(ctx, anchor, b); err != nil {
		c.log.Err(err, "重新插入徽章失败", "anchor", anchor)
		return
	}
	c.setState(Mounted)
	c.log.Debug("徽章已重新挂载", "anchor", anchor)
}

func (c *Controller) waitAnchor(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.AnchorTimeout)
	defer cancel()

	// 先订阅再查询，避免错过两者之间的变化
	muts, unsubscribe := c.doc.Mutations()
	defer unsubscribe()

	for {
		anchor, err := c.doc.FindAnchor(ctx, c.opts.Selectors)
		if err != nil {
			return "", fmt.Errorf("find anchor: %w", err)
		}
		if anchor != "" {
			return anchor, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w after %s", ErrAnchorNotFound, c.opts.AnchorTimeout)
		case _, ok := <-muts:
			if !ok {
				return "", ErrAnchorNotFound
			}
		}
	}
}

// arm 在下一帧安排一次检查。第一次变化起算，持续变化不会推迟已排定的检查
func (c *Controller) arm() {
	c.armMu.Lock()
	defer c.armMu.Unlock()
	if c.armed {
		return
	}
	c.armed = true
	time.AfterFunc(c.opts.FrameInterval, c.fire)
}

func (c *Controller) fire() {
	c.armMu.Lock()
	c.armed = false
	c.armMu.Unlock()
	signal(c.check)
}

func (c *Controller) isWatching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watching
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
