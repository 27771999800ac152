package model

import "time"

type SessionID string
type TargetID string

// EntityID 当前实体标识，空串表示“没有当前实体”
type EntityID string

// WildcardKey 等待“任意实体”的键
const WildcardKey EntityID = "*"

// Source 响应来源
type Source string

const (
	SourceFetch Source = "network-fetch"
	SourceXHR   Source = "network-xhr"
)

// CaptureMode 采集通道
type CaptureMode string

const (
	CaptureFetch   CaptureMode = "fetch"
	CaptureNetwork CaptureMode = "network"
)

type SessionConfig struct {
	DevToolsURL       string      `json:"devToolsURL"`
	Target            TargetID    `json:"target"`
	Mode              CaptureMode `json:"mode"`
	APIPath           string      `json:"apiPath"`
	QueryParam        string      `json:"queryParam"`
	Concurrency       int         `json:"concurrency"`
	BodySizeThreshold int64       `json:"bodySizeThreshold"`
	PendingCapacity   int         `json:"pendingCapacity"`
	ProcessTimeoutMS  int         `json:"processTimeoutMS"`
}

// Body 解码后的响应体：JSON 为 true 时 Text 是合法 JSON，否则为原始文本
type Body struct {
	Text string `json:"text"`
	JSON bool   `json:"json"`
}

// InterceptedResponse 一次匹配的网络交换产生的响应，构造后不可变
type InterceptedResponse struct {
	ID         string    `json:"id"`
	Data       Body      `json:"data"`
	URL        string    `json:"url"`
	Source     Source    `json:"source"`
	EntityID   EntityID  `json:"entityId"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Stat 单个统计字段
type Stat struct {
	Present bool   `json:"present"`
	Null    bool   `json:"null"`
	Text    string `json:"text"`
}

// Placeholder 缺失值的占位符
const Placeholder = "-"

// String 返回用于展示的文本，缺失或为 null 时返回占位符
func (s Stat) String() string {
	if !s.Present || s.Null {
		return Placeholder
	}
	return s.Text
}

// Stats 徽章上展示的两个字段
type Stats struct {
	Applies Stat `json:"applies"`
	Views   Stat `json:"views"`
}

type Event struct {
	Type      string    `json:"type"`
	Session   SessionID `json:"session"`
	Target    TargetID  `json:"target"`
	URL       string    `json:"url"`
	EntityID  EntityID  `json:"entityId"`
	Timestamp int64     `json:"timestamp"`
}

type TargetInfo struct {
	ID        TargetID `json:"id"`
	Type      string   `json:"type"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	IsCurrent bool     `json:"isCurrent"`
}

// WaitOptions 等待选项，Once 为 true 时忽略缓存，只等待下一次匹配的响应
type WaitOptions struct {
	Once bool `json:"once"`
}
