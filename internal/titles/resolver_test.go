package titles

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/example/viewtrack/internal/record"
)

func parse(t *testing.T, doc string) *html.Node {
	t.Helper()
	n, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return n
}

func TestDetect(t *testing.T) {
	cases := map[string]record.Service{
		"video.unext.jp":     record.ServiceUNext,
		"www.netflix.com":    record.ServiceNetflix,
		"www.primevideo.com": record.ServiceAmazonPrime,
		"www.disneyplus.com": record.ServiceDisneyPlus,
		"example.com":        record.ServiceUnknown,
	}
	for host, want := range cases {
		if got := Detect(host); got != want {
			t.Fatalf("Detect(%q) = %s, want %s", host, got, want)
		}
	}
}

func TestResolve_FirstCandidateWins(t *testing.T) {
	root := parse(t, `<html><body>
		<div class="video-title">Primary Title</div>
		<div class="title-content">Fallback Title</div>
	</body></html>`)

	main, _ := Resolve(record.ServiceNetflix, root)
	if main != "Primary Title" {
		t.Fatalf("expected first candidate to win, got %q", main)
	}
}

func TestResolve_AttributeSelector(t *testing.T) {
	root := parse(t, `<html><body>
		<h1 data-uia="video-title">  Attr Title  </h1>
		<span data-uia="episode-title">Episode 3</span>
	</body></html>`)

	main, episode := Resolve(record.ServiceNetflix, root)
	if main != "Attr Title" {
		t.Fatalf("expected trimmed attr match, got %q", main)
	}
	if episode != "Episode 3" {
		t.Fatalf("expected episode from attr candidate, got %q", episode)
	}
}

func TestResolve_FallbackChain(t *testing.T) {
	// First candidate present but empty: keep falling through.
	root := parse(t, `<html><body>
		<div class="front_contents_title">   </div>
		<div class="card__heading">Heading Title</div>
	</body></html>`)

	main, episode := Resolve(record.ServiceUNext, root)
	if main != "Heading Title" {
		t.Fatalf("expected fallback candidate, got %q", main)
	}
	if episode != "" {
		t.Fatalf("expected empty episode, got %q", episode)
	}
}

func TestResolve_MainAndEpisodeIndependent(t *testing.T) {
	root := parse(t, `<html><body>
		<div class="dv-episode-title">Ep 12</div>
	</body></html>`)

	main, episode := Resolve(record.ServiceAmazonPrime, root)
	if main != "" {
		t.Fatalf("expected no main title, got %q", main)
	}
	if episode != "Ep 12" {
		t.Fatalf("expected episode match, got %q", episode)
	}
}

func TestResolve_NoMatchYieldsEmpty(t *testing.T) {
	root := parse(t, `<html><body><p>nothing relevant</p></body></html>`)

	main, episode := Resolve(record.ServiceDisneyPlus, root)
	if main != "" || episode != "" {
		t.Fatalf("expected empty pair, got %q / %q", main, episode)
	}
}

func TestResolve_UnknownServiceAndNilRoot(t *testing.T) {
	if main, episode := Resolve(record.ServiceUnknown, nil); main != "" || episode != "" {
		t.Fatal("unknown service must yield empty titles")
	}
	root := parse(t, `<html><body><div class="video-title">X</div></body></html>`)
	if main, _ := Resolve(record.ServiceUnknown, root); main != "" {
		t.Fatal("unknown service must ignore selectors of other services")
	}
}

func TestResolve_Idempotent(t *testing.T) {
	root := parse(t, `<html><body><div class="content-title">Same</div></body></html>`)
	a, _ := Resolve(record.ServiceDisneyPlus, root)
	b, _ := Resolve(record.ServiceDisneyPlus, root)
	if a != b {
		t.Fatalf("resolution must be pure: %q vs %q", a, b)
	}
}
