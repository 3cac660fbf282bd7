// Package library provides read access to the media library database.
package library

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mellowplay/hub/internal/app/mixer"
	"github.com/mellowplay/hub/internal/domain/media"
)

// sortColumns maps resolver sort keys to table columns.
var sortColumns = map[string]string{
	"title":    "title",
	"artist":   "artist",
	"album":    "album",
	"duration": "duration",
	"added":    "added_at",
}

// Store reads media files and playlists from a SQLite library database.
type Store struct {
	db        *gorm.DB
	musicRoot string
}

// Open opens the library database. musicRoot anchors the relative paths
// stored in the database.
func Open(databasePath, musicRoot string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open library database %s", databasePath)
	}
	if err := db.AutoMigrate(&mediaFileRow{}, &playlistRow{}, &mediaFilePlaylistRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate library schema")
	}
	return &Store{db: db, musicRoot: musicRoot}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// QueryFiles returns the IDs matching the criteria. Multiple sources are
// combined with OR; filters and ordering apply to the union. A criteria
// naming exactly one playlist and nothing else preserves the stored
// playlist order.
func (s *Store) QueryFiles(ctx context.Context, c mixer.Criteria) ([]int64, error) {
	tx := s.db.WithContext(ctx).Model(&mediaFileRow{}).Select("media_files.id")

	if singlePlaylistOnly(c) {
		tx = tx.
			Joins("JOIN media_file_playlists mp ON mp.media_file_id = media_files.id").
			Where("mp.playlist_id = ?", c.Playlists[0]).
			Order("mp.position ASC")
	} else if !c.All {
		var sources *gorm.DB
		or := func(cond *gorm.DB) {
			if sources == nil {
				sources = cond
			} else {
				sources = sources.Or(cond)
			}
		}
		if len(c.Artists) > 0 {
			or(s.db.Where("artist IN ?", c.Artists))
		}
		if len(c.Albums) > 0 {
			or(s.db.Where("album IN ?", c.Albums))
		}
		if len(c.TrackIDs) > 0 {
			or(s.db.Where("media_files.id IN ?", c.TrackIDs))
		}
		if len(c.Playlists) > 0 {
			sub := s.db.Model(&mediaFilePlaylistRow{}).
				Select("media_file_id").
				Where("playlist_id IN ?", c.Playlists)
			or(s.db.Where("media_files.id IN (?)", sub))
		}
		// No source named means the whole library.
		if sources != nil {
			tx = tx.Where(sources)
		}
	}

	if c.LikedOnly {
		tx = tx.Where("liked = ?", true)
	}

	switch {
	case c.Random > 0:
		tx = tx.Order("RANDOM()").Limit(c.Random)
	case c.SortBy != "":
		col, ok := sortColumns[c.SortBy]
		if !ok {
			return nil, errors.Newf("unknown sort key %q", c.SortBy)
		}
		dir := "ASC"
		if c.SortDesc {
			dir = "DESC"
		}
		tx = tx.Order(col + " " + dir)
	}

	if c.Limit > 0 {
		tx = tx.Limit(c.Limit)
	}

	var ids []int64
	if err := tx.Pluck("media_files.id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "query media files")
	}
	if trackIDsOnly(c) {
		ids = reorderTo(c.TrackIDs, ids)
	}
	return ids, nil
}

// trackIDsOnly reports whether the criteria is a bare ID lookup, which
// keeps the requested ID order.
func trackIDsOnly(c mixer.Criteria) bool {
	return len(c.TrackIDs) > 0 &&
		!c.All &&
		len(c.Artists) == 0 &&
		len(c.Albums) == 0 &&
		len(c.Playlists) == 0 &&
		c.Random == 0 &&
		c.SortBy == ""
}

func reorderTo(requested, found []int64) []int64 {
	present := make(map[int64]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	out := make([]int64, 0, len(found))
	for _, id := range requested {
		if present[id] {
			out = append(out, id)
			present[id] = false
		}
	}
	return out
}

// FilesByIDs loads full media files for the given IDs, preserving the
// requested order. Unknown IDs are dropped silently.
func (s *Store) FilesByIDs(ctx context.Context, ids []int64) ([]media.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []mediaFileRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load media files")
	}

	byID := make(map[int64]mediaFileRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	files := make([]media.File, 0, len(ids))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			continue
		}
		files = append(files, media.File{
			ID:           row.ID,
			Title:        row.Title,
			Artist:       row.Artist,
			Album:        row.Album,
			Duration:     row.Duration,
			Path:         filepath.Join(s.musicRoot, row.Directory, row.FileName),
			CoverArtPath: row.CoverArtPath,
		})
	}
	return files, nil
}

// singlePlaylistOnly reports whether the criteria is a bare single-playlist
// lookup, which keeps the stored item order.
func singlePlaylistOnly(c mixer.Criteria) bool {
	return len(c.Playlists) == 1 &&
		!c.All &&
		len(c.Artists) == 0 &&
		len(c.Albums) == 0 &&
		len(c.TrackIDs) == 0 &&
		c.Random == 0 &&
		c.SortBy == ""
}
