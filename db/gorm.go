package db

import (
	"fmt"
	"time"

	"songcatalog/config"
	"songcatalog/logger"
	"songcatalog/model"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormDB 是 GORM 数据库连接实例
var GormDB *gorm.DB

// DSN 由配置生成 MySQL 连接串，JSON 列和时间字段需要 parseTime
func DSN(cfg *config.Config) string {
	dc := driver.NewConfig()
	dc.User = cfg.DBUser
	dc.Passwd = cfg.DBPassword
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%s", cfg.DBHost, cfg.DBPort)
	dc.DBName = cfg.DBName
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

// ConnectGormDB 建立 GORM 数据库连接
func ConnectGormDB(cfg *config.Config) error {
	level := gormlogger.Warn
	if cfg.DBLogSQL {
		level = gormlogger.Info
	}

	var err error
	GormDB, err = gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
		// 禁用外键约束
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	// 获取底层的 sql.DB 并配置连接池
	sqlDB, err := GormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("数据库连接成功",
		logger.String("host", cfg.DBHost),
		logger.String("database", cfg.DBName))
	return nil
}

// CloseGormDB 关闭 GORM 数据库连接
func CloseGormDB() error {
	if GormDB == nil {
		return nil
	}
	sqlDB, err := GormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate 迁移目录相关的表
func AutoMigrate() error {
	if GormDB == nil {
		return fmt.Errorf("GORM database not initialized")
	}
	if err := GormDB.AutoMigrate(&model.Song{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	if err := backfillArtistIndex(GormDB); err != nil {
		return err
	}
	logger.Info("数据表迁移完成")
	return nil
}

// backfillArtistIndex 为新增的 artist_names 列补数据，不改动 version
func backfillArtistIndex(tx *gorm.DB) error {
	var songs []*model.Song
	update := tx.Session(&gorm.Session{NewDB: true})
	filled := 0
	err := tx.Model(&model.Song{}).
		Where("artist_names = '' AND JSON_LENGTH(artists) > 0").
		FindInBatches(&songs, 200, func(_ *gorm.DB, _ int) error {
			for _, song := range songs {
				song.RefreshArtistIndex()
				if err := update.Model(song).UpdateColumn("artist_names", song.ArtistIndex).Error; err != nil {
					return err
				}
				filled++
			}
			return nil
		}).Error
	if err != nil {
		return fmt.Errorf("failed to backfill artist_names: %w", err)
	}
	if filled > 0 {
		logger.Info("已补全 artist_names", logger.Int("songs", filled))
	}
	return nil
}
