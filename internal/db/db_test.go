package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/outreach-agent/internal/conversation"
	"gorm.io/gorm"
)

func TestIsSQLite(t *testing.T) {
	assert.True(t, IsSQLite("file:data/memory_store.sqlite"))
	assert.True(t, IsSQLite("sqlite:///tmp/x.db"))
	assert.True(t, IsSQLite("data/leads.db?_pragma=foreign_keys(1)"))
	assert.True(t, IsSQLite(":memory:"))
	assert.False(t, IsSQLite("app:apppass@tcp(127.0.0.1:3306)/outreach?parseTime=true"))
}

func TestInMemoryDSN(t *testing.T) {
	assert.Equal(t, "file:TestFoo_sub_case?mode=memory&cache=shared", InMemoryDSN("TestFoo/sub case"))
}

func TestConnect_CreatesParentDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory_store.sqlite")

	gdb, err := Connect("file:" + path)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))

	assert.True(t, gdb.Migrator().HasTable(&conversation.Record{}))
	assert.True(t, gdb.Migrator().HasTable("memory"))
	assert.FileExists(t, path)
}

type extraModel struct {
	ID   uint
	Name string
}

func TestMigrate_ExtraModels(t *testing.T) {
	gdb, err := Connect(InMemoryDSN(t.Name()))
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb, &extraModel{}))
	assert.True(t, gdb.Migrator().HasTable(&extraModel{}))
	assert.True(t, gdb.Migrator().HasTable(&conversation.Record{}))
}

type captureWriter struct{ lines []string }

func (w *captureWriter) Printf(format string, args ...any) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	w := &captureWriter{}
	gdb, err := Connect(InMemoryDSN(t.Name()))
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))
	gdb = gdb.Session(&gorm.Session{Logger: newGormLogger(w)})

	var rec conversation.Record
	err = gdb.WithContext(context.Background()).Where("lead_id = ?", "unseen").Take(&rec).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, w.lines)

	err = gdb.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.NotEmpty(t, w.lines, "real errors are still reported")
}
