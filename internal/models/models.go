package models

import (
	"time"

	"gorm.io/gorm"
)

// 用户模型
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Role      string         `gorm:"default:'member'" json:"role"` // member, manager, admin
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 组织（客户公司）
type Organization struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ProjectID      uint           `gorm:"index" json:"project_id"`
	Name           string         `gorm:"not null" json:"name"`
	Domain         string         `json:"domain"`
	Industry       string         `json:"industry"`
	OwnerID        *uint          `gorm:"index" json:"owner_id"`
	Tags           string         `json:"tags"` // 逗号分隔
	LastActivityAt *time.Time     `gorm:"index" json:"last_activity_at"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// 联系人
type Person struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ProjectID      uint           `gorm:"index" json:"project_id"`
	OrganizationID *uint          `gorm:"index" json:"organization_id"`
	Name           string         `gorm:"not null" json:"name"`
	Email          string         `gorm:"index" json:"email"`
	Phone          string         `json:"phone"`
	Title          string         `json:"title"`
	OwnerID        *uint          `gorm:"index" json:"owner_id"`
	Tags           string         `json:"tags"`
	LastActivityAt *time.Time     `gorm:"index" json:"last_activity_at"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

// 商机
type Opportunity struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ProjectID      uint           `gorm:"index" json:"project_id"`
	OrganizationID *uint          `gorm:"index" json:"organization_id"`
	Name           string         `gorm:"not null" json:"name"`
	Stage          string         `gorm:"default:'prospecting';index" json:"stage"` // prospecting, qualification, proposal, negotiation, closed_won, closed_lost
	Status         string         `gorm:"default:'open'" json:"status"`             // open, won, lost, on_hold
	Amount         float64        `json:"amount"`
	CloseDate      *time.Time     `gorm:"index" json:"close_date"`
	OwnerID        *uint          `gorm:"index" json:"owner_id"`
	Tags           string         `json:"tags"`
	LastActivityAt *time.Time     `gorm:"index" json:"last_activity_at"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

// 任务
type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProjectID   uint           `gorm:"index" json:"project_id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"default:'open';index" json:"status"` // open, in_progress, done, cancelled
	Priority    string         `gorm:"default:'normal'" json:"priority"`   // low, normal, high, urgent
	DueDate     *time.Time     `gorm:"index" json:"due_date"`
	OwnerID     *uint          `gorm:"index" json:"owner_id"`
	EntityType  string         `json:"entity_type"` // 关联实体类型
	EntityID    string         `json:"entity_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// 活动流水（通话、会议、备注、系统事件）
type Activity struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProjectID  uint      `gorm:"index" json:"project_id"`
	EntityType string    `gorm:"index:idx_activities_entity" json:"entity_type"`
	EntityID   string    `gorm:"index:idx_activities_entity" json:"entity_id"`
	Kind       string    `json:"kind"` // note, call, meeting, email, system
	Body       string    `gorm:"type:text" json:"body"`
	UserID     *uint     `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// 模板邮件发送记录
type OutboundEmail struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProjectID  uint      `gorm:"index" json:"project_id"`
	TemplateID string    `gorm:"not null" json:"template_id"`
	Recipient  string    `gorm:"not null" json:"recipient"`
	Variables  string    `gorm:"type:text" json:"variables"` // JSON
	Status     string    `gorm:"default:'queued'" json:"status"` // queued, sent, failed
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// 序列注册（外呼/培育序列）
type SequenceEnrollment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProjectID    uint      `gorm:"index" json:"project_id"`
	PersonID     uint      `gorm:"index" json:"person_id"`
	SequenceID   string    `gorm:"not null" json:"sequence_id"`
	ConnectionID string    `json:"connection_id"`
	Status       string    `gorm:"default:'active'" json:"status"` // active, paused, completed, cancelled
	EnrolledAt   time.Time `json:"enrolled_at"`
}

// AI 调研任务
type ResearchJob struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	JobID      string    `gorm:"uniqueIndex" json:"job_id"`
	ProjectID  uint      `gorm:"index" json:"project_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Status     string    `gorm:"default:'queued'" json:"status"` // queued, running, done, failed
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
