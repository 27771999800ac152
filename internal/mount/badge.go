package mount

import "cdpjobstats/pkg/model"

// 徽章在页面中使用的固定标识
const (
	BadgeID    = "li-job-stats-wrap"
	StyleID    = "li-job-stats-style"
	WrapClass  = "li-job-stats"
	StatClass  = "li-job-stat"
	SepClass   = "sep"
	Separator  = "•"
	BadgeStyle = `.li-job-stats { display: inline-flex; gap: 8px; align-items: center; font-weight: 600; margin-left: 6px; vertical-align: middle; }
.li-job-stat { padding: 2px 6px; border-radius: 999px; background: #eef3f8; color: #0a66c2; font-size: 12px; line-height: 1.4; }
.li-job-stats .sep { color: #666; font-weight: 400; }`
)

// Badge 徽章的内容
type Badge struct {
	ID      string `json:"id"`
	Applies string `json:"applies"`
	Sep     string `json:"sep"`
	Views   string `json:"views"`
}

// NewBadge 由统计值构造徽章内容
func NewBadge(s model.Stats) Badge {
	return Badge{
		ID:      BadgeID,
		Applies: "Applies: " + s.Applies.String(),
		Sep:     Separator,
		Views:   "Views: " + s.Views.String(),
	}
}
