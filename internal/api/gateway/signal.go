// Package gateway exposes the hub over a websocket signal channel. Inbound
// signals are decoded into commands for the playback session; outbound
// snapshots fan out through the broadcast manager.
package gateway

import (
	"encoding/json"

	"github.com/mellowplay/hub/internal/app/mixer"
	"github.com/mellowplay/hub/internal/app/session"
	"github.com/mellowplay/hub/internal/domain/playlist"
)

// Inbound signal types.
const (
	SignalSetMediaLibraryPath = "set_media_library_path"
	SignalPlay                = "play"
	SignalPause               = "pause"
	SignalNext                = "next"
	SignalPrevious            = "previous"
	SignalSeek                = "seek"
	SignalSetPlaybackMode     = "set_playback_mode"
	SignalSwitch              = "switch"
	SignalRemove              = "remove"
	SignalMovePlaylistItem    = "move_playlist_item"
	SignalVolume              = "volume"
	SignalOperatePlayback     = "operate_playback_with_mix_query"
)

// Outbound signal types.
const (
	SignalPlaybackStatus          = "playback_status"
	SignalPlaylistUpdate          = "playlist_update"
	SignalVolumeResponse          = "volume_response"
	SignalOperatePlaybackResponse = "operate_playback_with_mix_query_response"
	SignalRealtimeFFT             = "realtime_fft"
	SignalError                   = "error"
)

// Error codes carried on error signals.
const (
	CodeIndexError       = "index_error"
	CodeInvalidMode      = "invalid_mode"
	CodeResolutionError  = "resolution_error"
	CodeDispatchError    = "dispatch_error"
	CodeMalformedRequest = "malformed_request"
	CodeInternalError    = "internal_error"
)

// Envelope is the wire frame for every signal in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SetMediaLibraryPathRequest points the hub at a library on disk.
type SetMediaLibraryPathRequest struct {
	Path string `json:"path"`
}

// SeekRequest moves the playhead of the current track.
type SeekRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
}

// SetPlaybackModeRequest switches the playback mode.
type SetPlaybackModeRequest struct {
	Mode uint32 `json:"mode"`
}

// SwitchRequest jumps playback to a queue index.
type SwitchRequest struct {
	Index int `json:"index"`
}

// RemoveRequest deletes a queue item.
type RemoveRequest struct {
	Index int `json:"index"`
}

// MovePlaylistItemRequest relocates a queue item.
type MovePlaylistItemRequest struct {
	OldIndex int `json:"old_index"`
	NewIndex int `json:"new_index"`
}

// VolumeRequest sets the output volume.
type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

// VolumeResponse reports the volume actually applied after clamping.
type VolumeResponse struct {
	Volume float64 `json:"volume"`
}

// OperatePlaybackWithMixQueryRequest resolves mix queries into a track list
// and applies it to the queue in one step.
type OperatePlaybackWithMixQueryRequest struct {
	Queries              []mixer.Query `json:"queries"`
	PlaybackMode         uint32        `json:"playback_mode"`
	HintPosition         int32         `json:"hint_position"`
	InitialPlaybackID    int64         `json:"initial_playback_id"`
	InstantlyPlay        bool          `json:"instantly_play"`
	ReplacePlaylist      bool          `json:"replace_playlist"`
	FallbackMediaFileIDs []int32       `json:"fallback_media_file_ids"`
}

// OperatePlaybackWithMixQueryResponse carries the resolved file IDs.
type OperatePlaybackWithMixQueryResponse struct {
	FileIDs []int32 `json:"file_ids"`
}

// ErrorPayload is the body of an error signal.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PlaybackStatusPayload is the outbound transport snapshot.
type PlaybackStatusPayload struct {
	State              string  `json:"state"`
	ProgressSeconds    float64 `json:"progress_seconds"`
	ProgressPercentage float64 `json:"progress_percentage"`
	Artist             string  `json:"artist"`
	Album              string  `json:"album"`
	Title              string  `json:"title"`
	Duration           float64 `json:"duration"`
	Index              int     `json:"index"`
	ID                 int64   `json:"id"`
	PlaybackMode       uint32  `json:"playback_mode"`
	Ready              bool    `json:"ready"`
	CoverArtPath       string  `json:"cover_art_path,omitempty"`
}

// PlaylistItemPayload is one row of a playlist update.
type PlaylistItemPayload struct {
	Index        int     `json:"index"`
	ID           int64   `json:"id"`
	Artist       string  `json:"artist"`
	Album        string  `json:"album"`
	Title        string  `json:"title"`
	Duration     float64 `json:"duration"`
	CoverArtPath string  `json:"cover_art_path,omitempty"`
}

// PlaylistUpdatePayload is the outbound queue snapshot.
type PlaylistUpdatePayload struct {
	Items        []PlaylistItemPayload `json:"items"`
	CurrentIndex int                   `json:"current_index"`
}

// RealtimeFFTPayload carries one spectrum frame.
type RealtimeFFTPayload struct {
	Bins []float64 `json:"bins"`
}

func statusPayload(st session.Status) PlaybackStatusPayload {
	return PlaybackStatusPayload{
		State:              st.State.String(),
		ProgressSeconds:    st.ProgressSeconds,
		ProgressPercentage: st.ProgressPercentage,
		Artist:             st.Artist,
		Album:              st.Album,
		Title:              st.Title,
		Duration:           st.Duration,
		Index:              st.Index,
		ID:                 st.ID,
		PlaybackMode:       uint32(st.Mode),
		Ready:              st.Ready,
		CoverArtPath:       st.CoverArtPath,
	}
}

func playlistPayload(items []playlist.Item, current int) PlaylistUpdatePayload {
	p := PlaylistUpdatePayload{
		Items:        make([]PlaylistItemPayload, len(items)),
		CurrentIndex: current,
	}
	for i, item := range items {
		p.Items[i] = PlaylistItemPayload{
			Index:        i,
			ID:           item.ID,
			Artist:       item.Artist,
			Album:        item.Album,
			Title:        item.Title,
			Duration:     item.Duration,
			CoverArtPath: item.CoverArtPath,
		}
	}
	return p
}
