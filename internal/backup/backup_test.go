package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/logger"
)

type fakeSource struct {
	doc     domain.StoreDocument
	version uint64
}

func (f fakeSource) Document() (domain.StoreDocument, uint64) {
	return f.doc, f.version
}

func setupService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	src := fakeSource{
		doc: domain.StoreDocument{
			Shop:    domain.Shop{Name: "Stone Wall Books"},
			Catalog: []domain.Book{{ID: "swb-0001", Title: "The Sea Around Us"}},
		},
		version: 4,
	}
	svc := NewService(src, filepath.Join(t.TempDir(), "backups"), logger.Discard().Logger)
	clock := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestService_Create(t *testing.T) {
	svc, _ := setupService(t)

	info, err := svc.Create(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "backup-2026-03-14-093000", info.ID)
	data, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)

	var doc domain.StoreDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Stone Wall Books", doc.Shop.Name)
	require.Len(t, doc.Catalog, 1)
	assert.Equal(t, "swb-0001", doc.Catalog[0].ID)
}

func TestService_ListNewestFirstAndPrune(t *testing.T) {
	svc, clock := setupService(t)
	ctx := context.Background()

	for range 4 {
		_, err := svc.Create(ctx)
		require.NoError(t, err)
		*clock = clock.Add(24 * time.Hour)
	}
	require.NoError(t, os.WriteFile(filepath.Join(svc.Dir(), "notes.txt"), []byte("x"), 0o600))

	backups, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 4)
	assert.Equal(t, "backup-2026-03-17-093000", backups[0].ID)
	assert.Equal(t, "backup-2026-03-14-093000", backups[3].ID)

	removed, err := svc.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	backups, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "backup-2026-03-16-093000", backups[1].ID)
}

func TestService_ListMissingDir(t *testing.T) {
	svc, _ := setupService(t)

	backups, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestService_Read(t *testing.T) {
	svc, _ := setupService(t)
	info, err := svc.Create(context.Background())
	require.NoError(t, err)

	data, err := svc.Read(info.ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), "The Sea Around Us")

	_, err = svc.Read("backup-1999-01-01-000000")
	assert.ErrorIs(t, err, ErrBackupNotFound)
	_, err = svc.Read("../backup-secret")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestNewScheduler(t *testing.T) {
	svc, _ := setupService(t)

	_, err := NewScheduler(svc, "every tuesday", 7, nil)
	assert.Error(t, err)

	sched, err := NewScheduler(svc, "@daily", 7, logger.Discard().Logger)
	require.NoError(t, err)
	sched.Start()
	assert.True(t, sched.Next().After(time.Now()))
	require.NoError(t, sched.Stop(context.Background()))
}

func TestScheduler_RunCreatesAndPrunes(t *testing.T) {
	svc, clock := setupService(t)
	sched, err := NewScheduler(svc, "@hourly", 1, logger.Discard().Logger)
	require.NoError(t, err)

	sched.run()
	*clock = clock.Add(time.Hour)
	sched.run()

	backups, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "backup-2026-03-14-103000", backups[0].ID)
}
