package cdp

import (
	"cdpjobstats/internal/matcher"
	"cdpjobstats/pkg/model"
)

// Pipeline 传输层之上的业务管线，由页面会话实现
type Pipeline interface {
	Match(url string) matcher.Result
	Deliver(body model.Body, url string, source model.Source, entity model.EntityID) model.InterceptedResponse
}
