package reader

import (
	"bytes"
	"encoding/base64"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/htmlindex"

	"cdpjobstats/pkg/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode 将响应字节解码为文本；content-type 表明为 JSON 且内容合法时标记为结构化数据，
// 解析失败时退化为原始文本
func Decode(raw []byte, contentType string) model.Body {
	text := decodeText(raw, contentType)
	if !IsJSON(contentType) {
		return model.Body{Text: text}
	}
	if gjson.Valid(text) {
		return model.Body{Text: text, JSON: true}
	}
	return model.Body{Text: text}
}

// IsJSON 判断 content-type 是否为 JSON（含厂商类型，如 application/vnd.linkedin.normalized+json）
func IsJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}

func decodeText(raw []byte, contentType string) string {
	if cs := charset(contentType); cs != "" && !strings.EqualFold(cs, "utf-8") && !strings.EqualFold(cs, "utf8") {
		if enc, err := htmlindex.Get(cs); err == nil {
			if b, err := enc.NewDecoder().Bytes(raw); err == nil {
				raw = b
			}
		}
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), "�")
}

func charset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// rawBytes 还原 CDP 返回的响应体；base64 无法解码时退化为原始字符串
func rawBytes(body string, base64Encoded bool) []byte {
	if !base64Encoded {
		return []byte(body)
	}
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return []byte(body)
	}
	return b
}
