package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"cdpjobstats/internal/logger"
	"cdpjobstats/pkg/model"
)

// mirrorPayload 构造发布到页面的响应对象；合法 JSON 按原样嵌入，否则作为字符串
func mirrorPayload(r model.InterceptedResponse) (string, error) {
	out := "{}"
	var err error
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.Set(out, path, v)
		}
	}
	set("id", r.ID)
	set("url", r.URL)
	set("source", string(r.Source))
	if r.EntityID != "" {
		set("jobId", string(r.EntityID))
	} else {
		set("jobId", nil)
	}
	set("at", r.CapturedAt.UnixMilli())
	if err != nil {
		return "", err
	}
	if r.Data.JSON {
		return sjson.SetRaw(out, "data", r.Data.Text)
	}
	return sjson.Set(out, "data", r.Data.Text)
}

// mirror 将投递的响应同步到页面全局变量，供页面内代码读取或等待
type mirror struct {
	rt  evaluator
	log logger.Logger
}

// install 安装页面内的等待接口
func (m *mirror) install(ctx context.Context, queryParam string) error {
	return evaluate(ctx, m.rt, fmt.Sprintf(pageAPIScript, jsArg(queryParam)), nil)
}

func (m *mirror) publish(ctx context.Context, r model.InterceptedResponse) error {
	payload, err := mirrorPayload(r)
	if err != nil {
		return fmt.Errorf("build mirror payload: %w", err)
	}
	return evaluate(ctx, m.rt, fmt.Sprintf(publishScript, payload), nil)
}

// run 消费订阅通道直到其关闭或 ctx 结束
func (m *mirror) run(ctx context.Context, responses <-chan model.InterceptedResponse) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-responses:
			if !ok {
				return
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := m.publish(pctx, r); err != nil && ctx.Err() == nil {
				m.log.Warn("发布响应到页面失败", "id", r.ID, "error", err.Error())
			}
			cancel()
		}
	}
}
