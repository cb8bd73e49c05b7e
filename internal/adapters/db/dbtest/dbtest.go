// Package dbtest opens throwaway sqlite databases with the production schema models.
package dbtest

import (
	"testing"

	authModel "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	chatModel "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/chat/model"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// одно соединение: sqlite в памяти не любит параллельных писателей
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&authModel.User{},
		&authModel.RefreshToken{},
		&chatModel.ChatRoom{},
		&chatModel.ChatParticipant{},
		&chatModel.Message{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
