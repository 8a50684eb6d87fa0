package journal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotOpen 日志库未初始化
var ErrNotOpen = errors.New("操作日志库未初始化")

// OperationRepo 操作记录数据仓库
type OperationRepo struct {
	db *gorm.DB
}

func NewOperationRepo() *OperationRepo {
	return &OperationRepo{db: DB}
}

// NewOperationRepoWith 使用指定连接，测试和多库场景使用
func NewOperationRepoWith(db *gorm.DB) *OperationRepo {
	return &OperationRepo{db: db}
}

// Record 写入一条操作记录，OpID 为空时自动生成
func (r *OperationRepo) Record(op *Operation) error {
	if r == nil || r.db == nil {
		return ErrNotOpen
	}
	if op.OpID == "" {
		op.OpID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	return r.db.Create(op).Error
}

// OperationFilter 查询条件
type OperationFilter struct {
	Action string
	Result string
	Since  time.Time
	Limit  int
}

// List 按时间倒序返回操作记录
func (r *OperationRepo) List(filter OperationFilter) ([]Operation, error) {
	if r == nil || r.db == nil {
		return nil, ErrNotOpen
	}
	q := r.db.Model(&Operation{})
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Result != "" {
		q = q.Where("result = ?", filter.Result)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var ops []Operation
	err := q.Order("created_at desc").Order("id desc").Limit(limit).Find(&ops).Error
	return ops, err
}

// Latest 返回某类操作最近的一条记录
func (r *OperationRepo) Latest(action string) (*Operation, error) {
	if r == nil || r.db == nil {
		return nil, ErrNotOpen
	}
	var op Operation
	err := r.db.Where("action = ?", action).Order("created_at desc").Order("id desc").First(&op).Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CountByResult 按结果统计
func (r *OperationRepo) CountByResult() (map[string]int64, error) {
	if r == nil || r.db == nil {
		return nil, ErrNotOpen
	}
	type result struct {
		Result string
		Count  int64
	}
	var results []result
	err := r.db.Model(&Operation{}).
		Select("result, count(*) as count").
		Group("result").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range results {
		counts[r.Result] = r.Count
	}
	return counts, nil
}
