package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusApproved RunStatus = "approved"
	RunStatusRejected RunStatus = "rejected"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusApproved, RunStatusRejected:
		return true
	}
	return false
}

// Run 一次已提交的运动记录，钱包地址仅做冗余存储，不做外键约束
type Run struct {
	ID         string          `gorm:"primaryKey;size:36" json:"id"`
	Wallet     string          `gorm:"size:42;not null;index:idx_wallet_created" json:"wallet"`
	Distance   float64         `gorm:"not null" json:"distance"`
	Duration   int64           `gorm:"not null" json:"duration"`
	GPSUpdates int             `gorm:"not null;default:0" json:"gpsUpdates"`
	Movements  int             `gorm:"not null;default:0" json:"movements"`
	Status     RunStatus       `gorm:"size:16;not null;index" json:"status"`
	Tokens     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"tokens"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index:idx_wallet_created" json:"createdAt"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Run) TableName() string {
	return "runs"
}
