package matcher

import (
	"net/url"
	"strings"

	"cdpjobstats/pkg/model"
)

// Identity 提供当前实体ID与页面源
type Identity interface {
	Resolve() model.EntityID
	Origin() *url.URL
}

// Result 匹配结果
type Result struct {
	Matched  bool
	EntityID model.EntityID
	URL      string // 相对页面源规范化后的地址
}

// Matcher 判断一个请求地址是否属于当前实体
type Matcher struct {
	id      Identity
	apiPath string
}

// New 创建流量匹配器，apiPath 为固定的 API 路径标记
func New(id Identity, apiPath string) *Matcher {
	return &Matcher{id: id, apiPath: apiPath}
}

// Match 以调用时刻的当前实体ID判断 candidate 是否匹配；任何解析失败都视为不匹配
func (m *Matcher) Match(candidate string) Result {
	entity := m.id.Resolve()
	if entity == "" || candidate == "" {
		return Result{}
	}

	u, err := m.normalize(candidate)
	if err != nil {
		return Result{}
	}

	path := u.EscapedPath()
	if strings.Contains(path, m.apiPath) && strings.Contains(path, "/"+string(entity)) {
		return Result{Matched: true, EntityID: entity, URL: u.String()}
	}
	return Result{}
}

func (m *Matcher) normalize(candidate string) (*url.URL, error) {
	if origin := m.id.Origin(); origin != nil {
		return origin.Parse(candidate)
	}
	return url.Parse(candidate)
}
