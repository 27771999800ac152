package mount

import "context"

// Document 页面 DOM 边界
type Document interface {
	// FindAnchor 依次尝试 selectors，返回第一个命中的选择器；均未命中时返回空串
	FindAnchor(ctx context.Context, selectors []string) (string, error)
	// BadgeAttached 判断徽章是否仍在文档中
	BadgeAttached(ctx context.Context, id string) (bool, error)
	// UpdateBadge 原地更新已挂载徽章的内容，徽章不在文档中时返回 false
	UpdateBadge(ctx context.Context, b Badge) (bool, error)
	// InsertBadge 创建或复用徽章并插入到锚点之后（作为兄弟节点而非子节点）
	InsertBadge(ctx context.Context, anchor string, b Badge) error
	// Mutations 订阅文档结构变化通知，返回取消函数
	Mutations() (<-chan struct{}, func())
}
