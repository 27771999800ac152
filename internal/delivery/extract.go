package delivery

import (
	"github.com/tidwall/gjson"

	"cdpjobstats/pkg/model"
)

const (
	appliesPath = "data.applies"
	viewsPath   = "data.views"
)

// Extract 从响应体中提取 applies/views。响应体可以是已结构化的 JSON、
// 需要再解析一次的 JSON 文本，或者被编码成 JSON 字符串的 JSON；缺失字段保持为空
func Extract(body model.Body) model.Stats {
	if body.Text == "" || (!body.JSON && !gjson.Valid(body.Text)) {
		return model.Stats{}
	}
	doc := gjson.Parse(body.Text)
	if doc.Type == gjson.String && gjson.Valid(doc.Str) {
		doc = gjson.Parse(doc.Str)
	}
	return model.Stats{
		Applies: stat(doc.Get(appliesPath)),
		Views:   stat(doc.Get(viewsPath)),
	}
}

func stat(r gjson.Result) model.Stat {
	if !r.Exists() {
		return model.Stat{}
	}
	if r.Type == gjson.Null {
		return model.Stat{Present: true, Null: true}
	}
	return model.Stat{Present: true, Text: r.String()}
}
