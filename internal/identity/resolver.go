package identity

import (
	"net/url"
	"sync"

	"cdpjobstats/pkg/model"
)

// Location 页面当前地址的来源
type Location interface {
	Href() string
}

// Address 页面当前地址，由导航监听器更新
type Address struct {
	mu   sync.RWMutex
	href string
}

// NewAddress 创建地址持有者
func NewAddress(href string) *Address {
	return &Address{href: href}
}

// Set 更新当前地址
func (a *Address) Set(href string) {
	a.mu.Lock()
	a.href = href
	a.mu.Unlock()
}

// Href 返回当前地址
func (a *Address) Href() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.href
}

// Resolver 从当前地址的查询参数中解析实体ID
type Resolver struct {
	loc   Location
	param string
}

// NewResolver 创建实体解析器
func NewResolver(loc Location, param string) *Resolver {
	return &Resolver{loc: loc, param: param}
}

// Resolve 返回当前实体ID，参数缺失或地址无法解析时返回空串
func (r *Resolver) Resolve() model.EntityID {
	u, err := url.Parse(r.loc.Href())
	if err != nil {
		return ""
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil && len(q) == 0 {
		return ""
	}
	return model.EntityID(q.Get(r.param))
}

// Origin 返回当前地址的源（scheme://host/），无法解析时返回 nil
func (r *Resolver) Origin() *url.URL {
	u, err := url.Parse(r.loc.Href())
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}
