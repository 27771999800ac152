package traffic

import (
	"strings"

	"cdpjobstats/pkg/model"
)

// Header 大小写不敏感的头部集合
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// 资源类型，取值与 CDP network.ResourceType 一致
const (
	ResourceFetch = "Fetch"
	ResourceXHR   = "XHR"
)

// SourceFor 将资源类型映射为响应来源，非页面 API 流量返回 false
func SourceFor(resourceType string) (model.Source, bool) {
	switch resourceType {
	case ResourceFetch:
		return model.SourceFetch, true
	case ResourceXHR:
		return model.SourceXHR, true
	default:
		return "", false
	}
}

// Exchange 中立的已完成网络交换
type Exchange struct {
	ID           string // 事务唯一ID
	URL          string // 完整URL
	Method       string // HTTP方法
	ResourceType string // 资源类型 (如 Fetch, XHR)
	StatusCode   int    // 状态码
	Headers      Header // 响应头
	Body         []byte // 已解码（去 base64）的响应体
}

// NewExchange 创建初始化交换对象
func NewExchange() *Exchange {
	return &Exchange{Headers: make(Header)}
}

// ContentType 返回小写的 content-type
func (e *Exchange) ContentType() string {
	return strings.ToLower(e.Headers.Get("content-type"))
}
