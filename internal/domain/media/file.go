// Package media provides the media file domain entity.
package media

// File represents one audio file known to the library.
// It carries only information read from the library database.
type File struct {
	ID           int64   // library file ID
	Title        string  // track title from tags
	Artist       string  // artist name from tags
	Album        string  // album name from tags
	Duration     float64 // duration in seconds
	Path         string  // absolute path of the audio file
	CoverArtPath string  // path of the extracted cover art, empty if none
}

// Label returns a human-readable identification of the file,
// falling back to the path when the tags carry no title.
func (f *File) Label() string {
	if f.Title != "" {
		return f.Title
	}
	return f.Path
}
