package api

import (
	"context"

	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/service"
	"cdpjobstats/pkg/model"
)

// Service 服务接口
type Service interface {
	// StartSession 附加页面并启动会话
	StartSession(ctx context.Context, cfg model.SessionConfig) (model.SessionID, error)

	// StopSession 停止会话
	StopSession(id model.SessionID) error

	// ListTargets 列出可附加的页面
	ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error)

	// WaitForResponse 等待职位接口响应
	WaitForResponse(ctx context.Context, id model.SessionID, entity model.EntityID, opts model.WaitOptions) (model.InterceptedResponse, error)

	// LastResponse 指定职位最近一次响应
	LastResponse(id model.SessionID, entity model.EntityID) (model.InterceptedResponse, error)

	// MostRecent 最近一次响应
	MostRecent(id model.SessionID) (model.InterceptedResponse, error)

	// SubscribeResponses 订阅投递
	SubscribeResponses(id model.SessionID, buffer int) (<-chan model.InterceptedResponse, func(), error)

	// SubscribeEvents 订阅采集事件
	SubscribeEvents() <-chan model.Event

	// History 查询投递流水
	History(ctx context.Context, id model.SessionID, entity model.EntityID, limit int) ([]model.InterceptedResponse, error)

	// Close 停止全部会话
	Close() error
}

// Options 服务选项
type Options = service.Options

// NewService 创建并返回服务接口实现
func NewService(opts Options, l logger.Logger) Service {
	return service.New(opts, l)
}

var (
	ErrSessionNotFound = service.ErrSessionNotFound
	ErrNoResponse      = service.ErrNoResponse
)
