// Package db provides a gorm-backed reference implementation of the host's
// payment store contract. Hosts with their own order storage implement
// service.PaymentStore directly; this adapter serves small deployments and
// the test suite.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

type Payment struct {
	gorm.Model
	OrderCode string          `gorm:"index"`
	State     string          `gorm:"index"`
	Amount    decimal.Decimal `gorm:"type:numeric"`
	Currency  string
	Info      datatypes.JSON
}

// QuotaFunc reports whether the resource backing a payment's order can still
// be allocated. Returning service.ErrCapacityExceeded fails the confirmation
// as sold out; nil allows it.
type QuotaFunc func(ctx context.Context, payment *payments.PaymentRecord) error

type Store struct {
	db    *gorm.DB
	quota QuotaFunc
}

func NewStore(db *gorm.DB, quota QuotaFunc) (*Store, error) {
	if err := db.AutoMigrate(&Payment{}); err != nil {
		return nil, fmt.Errorf("migrate payment model: %w", err)
	}
	return &Store{db: db, quota: quota}, nil
}

var _ payments.PaymentStore = (*Store)(nil)

func (s *Store) PaymentByID(ctx context.Context, id uint) (*payments.PaymentRecord, error) {
	var row Payment
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payments.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %d: %w", id, err)
	}
	return toRecord(&row)
}

func (s *Store) LatestPaymentByOrderCode(ctx context.Context, code string) (*payments.PaymentRecord, error) {
	var row Payment
	err := s.db.WithContext(ctx).
		Where("order_code = ?", code).
		Order("created_at DESC").
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payments.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment for order %s: %w", code, err)
	}
	return toRecord(&row)
}

// MergeInfo updates one key of the info blob, preserving the rest. The
// read-modify-write runs in a transaction so concurrent callbacks interleave
// as whole merges (last write wins per key).
func (s *Store) MergeInfo(ctx context.Context, id uint, key string, value any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Payment
		err := tx.First(&row, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return payments.ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("load payment %d: %w", id, err)
		}

		info := map[string]any{}
		if len(row.Info) > 0 {
			if err := json.Unmarshal(row.Info, &info); err != nil {
				return fmt.Errorf("decode payment info: %w", err)
			}
		}
		info[key] = value

		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("encode payment info: %w", err)
		}

		return tx.Model(&row).Update("info", datatypes.JSON(data)).Error
	})
}

// Confirm transitions the payment to confirmed. Re-confirming an already
// confirmed payment is a no-op; delivery of callbacks is not exactly-once.
func (s *Store) Confirm(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Payment
		err := tx.First(&row, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return payments.ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("load payment %d: %w", id, err)
		}

		if row.State == string(payments.StateConfirmed) {
			return nil
		}

		if s.quota != nil {
			record, err := toRecord(&row)
			if err != nil {
				return err
			}
			if err := s.quota(ctx, record); err != nil {
				return err
			}
		}

		return tx.Model(&row).Update("state", string(payments.StateConfirmed)).Error
	})
}

func toRecord(row *Payment) (*payments.PaymentRecord, error) {
	info := map[string]any{}
	if len(row.Info) > 0 {
		if err := json.Unmarshal(row.Info, &info); err != nil {
			return nil, fmt.Errorf("decode payment info: %w", err)
		}
	}

	return &payments.PaymentRecord{
		ID:        row.ID,
		OrderCode: row.OrderCode,
		State:     payments.PaymentState(row.State),
		Amount:    row.Amount,
		Currency:  row.Currency,
		Info:      info,
		CreatedAt: row.CreatedAt,
	}, nil
}
