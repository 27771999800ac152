package cdp

import (
	"encoding/json"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	"cdpjobstats/pkg/traffic"
)

// FromPaused 将响应阶段的 Fetch 暂停事件转换为中立交换模型（不含响应体）
func FromPaused(ev *fetch.RequestPausedReply) *traffic.Exchange {
	ex := traffic.NewExchange()
	ex.ID = string(ev.RequestID)
	ex.URL = ev.Request.URL
	ex.Method = ev.Request.Method
	ex.ResourceType = string(ev.ResourceType)
	if ev.ResponseStatusCode != nil {
		ex.StatusCode = *ev.ResponseStatusCode
	}
	for _, h := range ev.ResponseHeaders {
		ex.Headers.Set(h.Name, h.Value)
	}
	return ex
}

// FromNetwork 将 Network 域的响应事件转换为中立交换模型（不含响应体）
func FromNetwork(id network.RequestID, resourceType network.ResourceType, res network.Response) *traffic.Exchange {
	ex := traffic.NewExchange()
	ex.ID = string(id)
	ex.URL = res.URL
	ex.ResourceType = string(resourceType)
	ex.StatusCode = res.Status

	var headers map[string]string
	if len(res.Headers) > 0 {
		if err := json.Unmarshal(res.Headers, &headers); err == nil {
			for k, v := range headers {
				ex.Headers.Set(k, v)
			}
		}
	}
	if ex.Headers.Get("content-type") == "" && res.MimeType != "" {
		ex.Headers.Set("content-type", res.MimeType)
	}
	return ex
}
