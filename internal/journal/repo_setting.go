package journal

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepo 键值状态数据仓库
type SettingRepo struct {
	db *gorm.DB
}

func NewSettingRepo() *SettingRepo {
	return &SettingRepo{db: DB}
}

func NewSettingRepoWith(db *gorm.DB) *SettingRepo {
	return &SettingRepo{db: db}
}

// Get 获取单个设置项
func (r *SettingRepo) Get(key string) (string, error) {
	if r == nil || r.db == nil {
		return "", ErrNotOpen
	}
	var setting Setting
	err := r.db.Where(&Setting{Key: key}).First(&setting).Error
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// SetBatch 批量写入（存在则更新，不存在则创建）
func (r *SettingRepo) SetBatch(items map[string]string) error {
	if r == nil || r.db == nil {
		return ErrNotOpen
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range items {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&Setting{Key: key, Value: value}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAll 获取所有设置项
func (r *SettingRepo) GetAll() (map[string]string, error) {
	if r == nil || r.db == nil {
		return nil, ErrNotOpen
	}
	var settings []Setting
	if err := r.db.Find(&settings).Error; err != nil {
		return nil, err
	}
	result := make(map[string]string, len(settings))
	for _, s := range settings {
		result[s.Key] = s.Value
	}
	return result, nil
}

// Delete 删除设置项
func (r *SettingRepo) Delete(key string) error {
	if r == nil || r.db == nil {
		return ErrNotOpen
	}
	return r.db.Where(&Setting{Key: key}).Delete(&Setting{}).Error
}
