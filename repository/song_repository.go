package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"songcatalog/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrStaleVersion is returned by Save when the stored version moved since the song was loaded.
	ErrStaleVersion = errors.New("song version is stale")
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("song id already exists")
)

// 排序方式
const (
	SortRecent = "recent"
	SortTitle  = "title"
)

// SongFilter 可以下推到存储层的过滤条件，派生状态的过滤在目录服务中完成
type SongFilter struct {
	Query    string // 标题或艺人名，大小写不敏感的子串匹配
	HasVideo *bool
	From     *time.Time
	To       *time.Time
	Sort     string
}

// SongRepository 歌曲数据访问接口
type SongRepository interface {
	Create(ctx context.Context, song *model.Song) error
	// GetByID 不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*model.Song, error)
	// Save 以 version 做比较并交换，成功后 song.Version 加一
	Save(ctx context.Context, song *model.Song) error
	List(ctx context.Context, filter SongFilter) ([]*model.Song, error)
	SearchByTitle(ctx context.Context, q string) ([]*model.Song, error)
	Random(ctx context.Context, limit int) ([]*model.Song, error)
}

// gormSongRepository GORM 实现
type gormSongRepository struct {
	db *gorm.DB
}

// NewGormSongRepository 创建 GORM 歌曲仓库
func NewGormSongRepository(db *gorm.DB) SongRepository {
	return &gormSongRepository{db: db}
}

// Create 创建歌曲
func (r *gormSongRepository) Create(ctx context.Context, song *model.Song) error {
	song.RefreshArtistIndex()
	err := r.db.WithContext(ctx).Create(song).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrDuplicateID
	}
	return err
}

// GetByID 根据ID获取歌曲
func (r *gormSongRepository) GetByID(ctx context.Context, id string) (*model.Song, error) {
	var song model.Song
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &song, nil
}

// Save 乐观锁更新
func (r *gormSongRepository) Save(ctx context.Context, song *model.Song) error {
	expected := song.Version
	song.Version = expected + 1
	song.RefreshArtistIndex()

	res := r.db.WithContext(ctx).
		Model(song).
		Where("version = ?", expected).
		Select("*").
		Omit("CreatedAt").
		Updates(song)
	if res.Error != nil {
		song.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		song.Version = expected
		return ErrStaleVersion
	}
	return nil
}

// List 按条件列出歌曲
func (r *gormSongRepository) List(ctx context.Context, filter SongFilter) ([]*model.Song, error) {
	var songs []*model.Song
	if err := listQuery(r.db.WithContext(ctx).Model(&model.Song{}), filter).Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}

func listQuery(tx *gorm.DB, filter SongFilter) *gorm.DB {
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := likePattern(q)
		tx = tx.Where("LOWER(title) LIKE ? ESCAPE '!' OR artist_names LIKE ? ESCAPE '!'", like, like)
	}
	if filter.HasVideo != nil {
		tx = tx.Where("has_video = ?", *filter.HasVideo)
	}
	if filter.From != nil {
		tx = tx.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		tx = tx.Where("created_at <= ?", *filter.To)
	}

	if filter.Sort == SortTitle {
		return tx.Order("title ASC")
	}
	return tx.Order("created_at DESC")
}

// likePattern 小写并转义 LIKE 通配符，配合 ESCAPE '!'
func likePattern(q string) string {
	escaped := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(strings.ToLower(strings.TrimSpace(q)))
	return "%" + escaped + "%"
}

// SearchByTitle 标题模糊搜索
func (r *gormSongRepository) SearchByTitle(ctx context.Context, q string) ([]*model.Song, error) {
	var songs []*model.Song
	err := r.db.WithContext(ctx).
		Where("LOWER(title) LIKE ? ESCAPE '!'", likePattern(q)).
		Order("title ASC").
		Find(&songs).Error
	return songs, err
}

// Random 随机取歌
func (r *gormSongRepository) Random(ctx context.Context, limit int) ([]*model.Song, error) {
	var songs []*model.Song
	err := r.db.WithContext(ctx).
		Order("RAND()").
		Limit(limit).
		Find(&songs).Error
	return songs, err
}
