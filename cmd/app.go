package cmd

import (
	"context"
	"fmt"

	"songcatalog/cache"
	"songcatalog/config"
	"songcatalog/db"
	"songcatalog/logger"
	"songcatalog/repository"
	"songcatalog/storage"
)

// app 命令共享的依赖
type app struct {
	cfg     *config.Config
	repo    repository.SongRepository
	store   storage.MediaStore
	closers []func() error
}

// bootstrap 加载配置、初始化日志并按驱动连接存储
func bootstrap(ctx context.Context, serverMode, withMedia bool) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(serverMode); err != nil {
		return nil, err
	}
	if err := logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg}
	a.closers = append(a.closers, func() error { logger.Sync(); return nil })

	switch cfg.StoreDriver {
	case config.DriverMySQL:
		if err := db.ConnectGormDB(cfg); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.CloseGormDB)
		if err := db.AutoMigrate(); err != nil {
			a.Close()
			return nil, err
		}
		a.repo = repository.NewGormSongRepository(db.GormDB)
	default:
		logger.Warn("[Bootstrap] 使用内存仓库，数据不会持久化")
		a.repo = repository.NewMemorySongRepository()
	}

	if cfg.RedisEnabled() {
		if err := cache.ConnectRedis(cfg); err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, cache.CloseRedis)
		a.repo = cache.NewCachedSongRepository(a.repo, cache.RedisClient, cfg.CacheTTL)
		logger.Info("[Bootstrap] Redis 缓存已启用", logger.String("host", cfg.RedisHost))
	}

	if withMedia {
		store, err := openMediaStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

func openMediaStore(ctx context.Context, cfg *config.Config) (storage.MediaStore, error) {
	if cfg.MediaDriver == config.DriverMemory {
		logger.Warn("[Bootstrap] 使用内存媒体存储")
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewMinioStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("无法连接到MinIO: %w", err)
	}
	return store, nil
}

// Close 逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("[Bootstrap] 释放资源失败", logger.ErrorField(err))
		}
	}
	a.closers = nil
}
