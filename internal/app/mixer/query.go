// Package mixer resolves declarative mix queries into ordered lists of
// library file IDs.
package mixer

import "context"

// Step is one tagged operator of a mix query, e.g. {"lib::artist", "Nina"}.
type Step struct {
	Operator  string `json:"operator"`
	Parameter string `json:"parameter"`
}

// Query is a declarative specification of a track selection: a list of
// steps combining source selectors, filters, sorting and a cap.
type Query struct {
	Steps []Step `json:"steps"`
}

// Supported step operators.
const (
	OpLibAll      = "lib::all"      // every file in the library
	OpLibArtist   = "lib::artist"   // files by artist name
	OpLibAlbum    = "lib::album"    // files by album name
	OpLibPlaylist = "lib::playlist" // files of a stored playlist, position order
	OpLibTrack    = "lib::track"    // a single file by ID
	OpLibRandom   = "lib::random"   // N random files
	OpFilterLiked = "filter::liked" // restrict to liked files
	OpPipeLimit   = "pipe::limit"   // cap the result length

	sortPrefix = "sort::" // sort::title, sort::artist, ... parameter asc|desc
)

// Criteria is the flattened form of a single query, handed to the library
// collaborator as one unit of evaluation.
type Criteria struct {
	All       bool
	Artists   []string
	Albums    []string
	Playlists []int64
	TrackIDs  []int64
	Random    int // pick N random files when > 0
	LikedOnly bool
	SortBy    string // title, artist, album, duration or added; empty for none
	SortDesc  bool
	Limit     int // 0 means unlimited
}

// Library is the query interface of the media library collaborator.
type Library interface {
	// QueryFiles evaluates the criteria and returns matching file IDs in
	// result order. A query is evaluated as a whole; partial results are
	// never returned alongside an error.
	QueryFiles(ctx context.Context, c Criteria) ([]int64, error)
}
