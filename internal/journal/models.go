package journal

import "time"

// Operation 一次检查、安装、卸载或网关操作的记录
type Operation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OpID       string    `gorm:"uniqueIndex;size:36" json:"op_id"`
	Action     string    `gorm:"index" json:"action"`
	Result     string    `gorm:"index" json:"result"`
	Platform   string    `json:"platform"`
	Strategy   string    `json:"strategy,omitempty"`
	Category   string    `gorm:"index" json:"category,omitempty"`
	Message    string    `json:"message"`
	Detail     string    `gorm:"type:text" json:"detail,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Setting 键值状态，例如最近一次成功安装的版本
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	SettingInstalledVersion = "openclaw.installed_version"
	SettingInstalledPath    = "openclaw.installed_path"
	SettingInstalledAt      = "openclaw.installed_at"
	SettingRuntimeVersion   = "node.version"
)
