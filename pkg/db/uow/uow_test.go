package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/kontago/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type counter struct {
	ID    int64 `gorm:"primaryKey"`
	Value int64
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&counter{}))
	require.NoError(t, conn.Create(&counter{ID: 1, Value: 10}).Error)
	return conn
}

func value(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()

	var row counter
	require.NoError(t, conn.First(&row, 1).Error)
	return row.Value
}

func TestRunCommits(t *testing.T) {
	conn := newTestDB(t)
	released := false
	committed := false

	err := Run(context.Background(), conn, func(u *Unit) error {
		u.Track("product:1", func() { released = true })
		u.AfterCommit(func(context.Context) {
			committed = true
			assert.True(t, released, "leases are released before after-commit hooks")
		})
		assert.True(t, u.Holds("product:1"))
		return u.DB().Model(&counter{}).Where("id = ?", 1).Update("value", 7).Error
	})

	require.NoError(t, err)
	assert.True(t, released)
	assert.True(t, committed)
	assert.Equal(t, int64(7), value(t, conn))
}

func TestRunRollsBackOnError(t *testing.T) {
	conn := newTestDB(t)
	errBoom := errors.New("boom")
	released := 0
	committed := false

	err := Run(context.Background(), conn, func(u *Unit) error {
		u.Track("product:1", func() { released++ })
		u.AfterCommit(func(context.Context) { committed = true })
		if err := u.DB().Model(&counter{}).Where("id = ?", 1).Update("value", 0).Error; err != nil {
			return err
		}
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, released)
	assert.False(t, committed)
	assert.Equal(t, int64(10), value(t, conn))
}

func TestRunRollsBackOnPanic(t *testing.T) {
	conn := newTestDB(t)
	released := false

	assert.Panics(t, func() {
		_ = Run(context.Background(), conn, func(u *Unit) error {
			u.Track("product:1", func() { released = true })
			if err := u.DB().Model(&counter{}).Where("id = ?", 1).Update("value", 0).Error; err != nil {
				return err
			}
			panic("crash mid-transaction")
		})
	})

	assert.True(t, released)
	assert.Equal(t, int64(10), value(t, conn))
}
