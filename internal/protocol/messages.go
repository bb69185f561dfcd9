package protocol

import "time"

// ConvertRequest asks the reader service to convert text into a library entry.
type ConvertRequest struct {
	RequestID string  `json:"request_id"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// ConvertCancel abandons an in-flight conversion.
type ConvertCancel struct {
	RequestID string `json:"request_id"`
}

// ConvertError describes a failed conversion.
type ConvertError struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	FailedChunks []int  `json:"failed_chunks,omitempty"`
}

// ConvertResult is published when a conversion finishes either way.
type ConvertResult struct {
	RequestID          string        `json:"request_id"`
	EntryID            string        `json:"entry_id,omitempty"`
	Location           string        `json:"location,omitempty"`
	SegmentDurationsMS []int64       `json:"segment_durations_ms,omitempty"`
	TotalMS            int64         `json:"total_ms,omitempty"`
	Error              *ConvertError `json:"error,omitempty"`
	Timestamp          time.Time     `json:"timestamp"`
}

// NowPlaying is the advisory media status pushed while a player is loaded.
type NowPlaying struct {
	Title     string    `json:"title"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Rate      float64   `json:"rate"`
	TotalMS   int64     `json:"total_ms"`
	Segment   int       `json:"segment"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectConvertRequest = "reader.convert.request"
	SubjectConvertCancel  = "reader.convert.cancel"
	SubjectConvertDone    = "reader.convert.done"
	SubjectNowPlaying     = "reader.playback.now_playing"
)
