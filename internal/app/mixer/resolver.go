package mixer

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrResolution marks mix query evaluation failures: malformed operators,
// bad parameters and library collaborator errors.
var ErrResolution = errors.New("mix query resolution failed")

var sortKeys = map[string]struct{}{
	"title":    {},
	"artist":   {},
	"album":    {},
	"duration": {},
	"added":    {},
}

// Resolver expands mix queries against the library.
type Resolver struct {
	library Library
}

// NewResolver creates a resolver backed by the given library.
func NewResolver(library Library) *Resolver {
	return &Resolver{library: library}
}

// Resolve evaluates the queries in order and concatenates their results,
// dropping duplicate IDs while keeping the first occurrence. When the
// combined result is empty, fallbackIDs is returned verbatim.
//
// On error the IDs resolved so far are returned alongside it; the caller
// decides whether to proceed with the partial result or abort.
func (r *Resolver) Resolve(ctx context.Context, queries []Query, fallbackIDs []int64) ([]int64, error) {
	resolved := make([]int64, 0)
	seen := make(map[int64]struct{})

	for i, q := range queries {
		ids, err := r.resolveOne(ctx, q)
		if err != nil {
			return resolved, errors.Wrapf(err, "query %d", i)
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			resolved = append(resolved, id)
		}
	}

	if len(resolved) == 0 {
		zlog.Debug().Int("fallback", len(fallbackIDs)).Msg("mixer: queries resolved empty, using fallback IDs")
		return append([]int64(nil), fallbackIDs...), nil
	}
	return resolved, nil
}

// resolveOne flattens a single query into criteria and evaluates it as a
// whole against the library.
func (r *Resolver) resolveOne(ctx context.Context, q Query) ([]int64, error) {
	c, err := buildCriteria(q)
	if err != nil {
		return nil, err
	}

	ids, err := r.library.QueryFiles(ctx, c)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "library query"), ErrResolution)
	}
	return ids, nil
}

func buildCriteria(q Query) (Criteria, error) {
	var c Criteria

	for _, s := range q.Steps {
		switch s.Operator {
		case OpLibAll:
			c.All = true
		case OpLibArtist:
			c.Artists = append(c.Artists, s.Parameter)
		case OpLibAlbum:
			c.Albums = append(c.Albums, s.Parameter)
		case OpLibPlaylist:
			id, err := strconv.ParseInt(s.Parameter, 10, 64)
			if err != nil {
				return c, errors.Wrapf(ErrResolution, "playlist id %q", s.Parameter)
			}
			c.Playlists = append(c.Playlists, id)
		case OpLibTrack:
			id, err := strconv.ParseInt(s.Parameter, 10, 64)
			if err != nil {
				return c, errors.Wrapf(ErrResolution, "track id %q", s.Parameter)
			}
			c.TrackIDs = append(c.TrackIDs, id)
		case OpLibRandom:
			n, err := strconv.Atoi(s.Parameter)
			if err != nil || n <= 0 {
				return c, errors.Wrapf(ErrResolution, "random count %q", s.Parameter)
			}
			c.Random = n
		case OpFilterLiked:
			v, err := strconv.ParseBool(s.Parameter)
			if err != nil {
				return c, errors.Wrapf(ErrResolution, "liked flag %q", s.Parameter)
			}
			c.LikedOnly = v
		case OpPipeLimit:
			n, err := strconv.Atoi(s.Parameter)
			if err != nil || n <= 0 {
				return c, errors.Wrapf(ErrResolution, "limit %q", s.Parameter)
			}
			c.Limit = n
		default:
			key, ok := strings.CutPrefix(s.Operator, sortPrefix)
			if !ok {
				return c, errors.Wrapf(ErrResolution, "unknown operator %q", s.Operator)
			}
			if _, known := sortKeys[key]; !known {
				return c, errors.Wrapf(ErrResolution, "unknown sort key %q", key)
			}
			c.SortBy = key
			c.SortDesc = strings.EqualFold(s.Parameter, "desc")
		}
	}
	return c, nil
}
