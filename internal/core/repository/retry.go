package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"gut-health-kb/internal/pkg/common"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 可重試的 PostgreSQL 錯誤代碼
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// isTransient 判斷錯誤是否為暫時性連線問題
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryablePgCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// translate 將 gorm 錯誤轉為服務錯誤
func translate(err error) error {
	var ce *common.CustomError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return common.ErrIngredientNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return common.ErrDuplicateIngredient.Wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return common.ErrRequestTimeout.Wrap(err)
	}
	return common.ErrDatabase.Wrap(err)
}

// run 執行資料庫操作，只有暫時性錯誤會以指數退避重試
func (r *ingredientRepo) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	start := time.Now()
	attempt := 0

	operation := func() error {
		attempt++
		if attempt > 1 {
			r.observer.RecordDBRetry(op)
		}
		err := fn(r.db.WithContext(ctx))
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		common.LogWarn("資料庫暫時性錯誤，稍後重試",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.maxRetries)), ctx), notify)
	r.observer.RecordDBOperation(op, err, time.Since(start))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		var ce *common.CustomError
		if !errors.As(err, &ce) {
			common.LogError("資料庫操作失敗", zap.String("operation", op), zap.Error(err))
		}
	}
	return translate(err)
}
