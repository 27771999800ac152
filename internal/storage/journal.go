package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"cdpjobstats/internal/delivery"
	"cdpjobstats/internal/logger"
	"cdpjobstats/pkg/model"
)

// Capture 一次投递的记录
type Capture struct {
	ID         string `gorm:"primaryKey;size:36"`
	SessionID  string `gorm:"index;size:64"`
	EntityID   string `gorm:"index;size:64"`
	URL        string
	Source     string `gorm:"size:32"`
	Body       string
	JSON       bool
	Applies    string    `gorm:"size:32"`
	Views      string    `gorm:"size:32"`
	CapturedAt time.Time `gorm:"index"`
}

// Response 还原为投递时的响应
func (c Capture) Response() model.InterceptedResponse {
	return model.InterceptedResponse{
		ID:         c.ID,
		Data:       model.Body{Text: c.Body, JSON: c.JSON},
		URL:        c.URL,
		Source:     model.Source(c.Source),
		EntityID:   model.EntityID(c.EntityID),
		CapturedAt: c.CapturedAt,
	}
}

// Journal 会话内全部投递的流水
type Journal struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开 sqlite 流水库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*Journal, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Capture{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, log: l}, nil
}

// Record 写入一次投递
func (j *Journal) Record(ctx context.Context, sid model.SessionID, r model.InterceptedResponse) error {
	stats := delivery.Extract(r.Data)
	c := Capture{
		ID:         r.ID,
		SessionID:  string(sid),
		EntityID:   string(r.EntityID),
		URL:        r.URL,
		Source:     string(r.Source),
		Body:       r.Data.Text,
		JSON:       r.Data.JSON,
		Applies:    stats.Applies.String(),
		Views:      stats.Views.String(),
		CapturedAt: r.CapturedAt,
	}
	return j.db.WithContext(WithSession(ctx, sid)).Create(&c).Error
}

// History 按时间倒序返回会话内的投递记录，entity 为空时不过滤职位，limit<=0 时不限制条数
func (j *Journal) History(ctx context.Context, sid model.SessionID, entity model.EntityID, limit int) ([]Capture, error) {
	q := j.db.WithContext(WithSession(ctx, sid)).Where("session_id = ?", string(sid))
	if entity != "" {
		q = q.Where("entity_id = ?", string(entity))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Capture
	if err := q.Order("captured_at desc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Run 持续记录订阅到的投递，直到通道关闭或 ctx 结束
func (j *Journal) Run(ctx context.Context, sid model.SessionID, responses <-chan model.InterceptedResponse) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-responses:
			if !ok {
				return
			}
			if err := j.Record(ctx, sid, r); err != nil {
				j.log.Err(err, "写入投递记录失败", "id", r.ID)
			}
		}
	}
}

// Close 关闭底层连接
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
