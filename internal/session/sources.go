package session

import "golang.org/x/net/html"

// MediaSample is one observation of the page's media element.
type MediaSample struct {
	Position float64 // current playback position, seconds
	Duration float64 // total duration, seconds; 0 when unknown
}

// MediaProbe reads the page's media element. ok is false when no media
// element is present.
type MediaProbe interface {
	Sample() (sample MediaSample, ok bool)
}

// DocumentSource exposes the page DOM for title resolution. Root must
// return a snapshot that is safe to traverse at call time.
type DocumentSource interface {
	Host() string
	Root() *html.Node
}

// RatingPrompter asks the user to rate the work described by the draft.
// Presentation is the host's concern; the tracker only triggers it.
type RatingPrompter interface {
	PromptRating(main, episode string)
}

// NopPrompter discards prompt requests.
type NopPrompter struct{}

func (NopPrompter) PromptRating(string, string) {}
