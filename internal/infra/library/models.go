package library

import "time"

// mediaFileRow mirrors the media_files table written by the library scanner.
type mediaFileRow struct {
	ID           int64 `gorm:"primaryKey"`
	FileName     string
	Directory    string
	Title        string
	Artist       string
	Album        string
	Duration     float64
	CoverArtPath string
	Liked        bool
	AddedAt      time.Time
}

func (mediaFileRow) TableName() string { return "media_files" }

// playlistRow is a stored playlist.
type playlistRow struct {
	ID        int64 `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
}

func (playlistRow) TableName() string { return "playlists" }

// mediaFilePlaylistRow links files to playlists with an explicit position.
type mediaFilePlaylistRow struct {
	PlaylistID  int64 `gorm:"primaryKey"`
	MediaFileID int64 `gorm:"primaryKey"`
	Position    int
}

func (mediaFilePlaylistRow) TableName() string { return "media_file_playlists" }
