package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kontago/internal/clock"
	"github.com/smallbiznis/kontago/internal/migration"
	productdomain "github.com/smallbiznis/kontago/internal/product/domain"
	"github.com/smallbiznis/kontago/internal/supplier/domain"
	"github.com/smallbiznis/kontago/internal/supplier/service"
	"github.com/smallbiznis/kontago/pkg/db"
	"github.com/smallbiznis/kontago/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) domain.Service {
	t.Helper()
	svc, _ := newServiceWithDB(t)
	return svc
}

func newServiceWithDB(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc := service.New(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)),
	})
	return svc, conn
}

func ptr(s string) *string { return &s }

func TestSupplierLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{
		Name:        " Papelera Norte ",
		ContactName: ptr("Luis"),
		Email:       ptr("ventas@papelera.example"),
		Phone:       ptr("  "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Papelera Norte", created.Name)
	assert.Nil(t, created.Phone)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Acme Limpieza"})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme Limpieza", list[0].Name)
	assert.Equal(t, "Papelera Norte", list[1].Name)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "bogus"), domain.ErrInvalidID)

	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSupplierCreateRejects(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Name: "Dup"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Dup"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: ""})
	assert.ErrorIs(t, err, validate.ErrInvalid)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Mail", Email: ptr("not-an-email")})
	assert.ErrorIs(t, err, validate.ErrInvalid)
}

func seedProduct(t *testing.T, conn *gorm.DB, id int64, name string) string {
	t.Helper()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&productdomain.Product{
		ID:        id,
		Name:      name,
		Slug:      name,
		MinStock:  5,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
	return snowflake.ID(id).String()
}

func TestSupplierCarriesProducts(t *testing.T) {
	svc, conn := newServiceWithDB(t)
	ctx := context.Background()

	pencil := seedProduct(t, conn, 101, "pencil")
	eraser := seedProduct(t, conn, 102, "eraser")

	created, err := svc.Create(ctx, domain.CreateRequest{
		Name:       "Papelera Norte",
		ProductIDs: []string{eraser, pencil, eraser},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{eraser, pencil}, created.ProductIDs)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Sin Productos"})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{pencil, eraser}, list[0].ProductIDs)
	assert.Empty(t, list[1].ProductIDs)

	require.NoError(t, svc.Delete(ctx, created.ID))
	var links int64
	require.NoError(t, conn.Model(&domain.SupplierProduct{}).Count(&links).Error)
	assert.Zero(t, links)
}

func TestSupplierRejectsUnknownProducts(t *testing.T) {
	svc, conn := newServiceWithDB(t)
	ctx := context.Background()

	known := seedProduct(t, conn, 201, "bucket")

	_, err := svc.Create(ctx, domain.CreateRequest{Name: "Acme", ProductIDs: []string{known, "999"}})
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Acme", ProductIDs: []string{"abc"}})
	assert.ErrorIs(t, err, validate.ErrInvalid)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	var links int64
	require.NoError(t, conn.Model(&domain.SupplierProduct{}).Count(&links).Error)
	assert.Zero(t, links)
}
