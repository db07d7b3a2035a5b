package model

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Delivery statuses stored in the delivery log.
const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// DeliveryRecord is one email attempt persisted by the optional delivery log.
type DeliveryRecord struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Recipient     string    `json:"recipient" gorm:"index"`
	Subject       string    `json:"subject"`
	Status        string    `json:"status"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	FailureDetail string    `json:"failure_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func CreateDeliveryRecord(ctx context.Context, db *gorm.DB, record *DeliveryRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

// ListRecentDeliveryRecords returns up to limit records, newest first.
func ListRecentDeliveryRecords(ctx context.Context, db *gorm.DB, limit int) ([]DeliveryRecord, error) {
	var records []DeliveryRecord
	query := db.WithContext(ctx).Order("created_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
