package record

import "testing"

func TestKey_Identity(t *testing.T) {
	a := ViewingRecord{MainTitle: "A", EpisodeTitle: "1", Service: ServiceNetflix}
	b := ViewingRecord{MainTitle: "A", EpisodeTitle: "1", Service: ServiceNetflix, WatchedDuration: 500}
	if a.Key() != b.Key() {
		t.Fatal("expected identical identity keys regardless of progress fields")
	}

	c := ViewingRecord{MainTitle: "A", EpisodeTitle: "1", Service: ServiceUNext}
	if a.Key() == c.Key() {
		t.Fatal("expected different services to produce different keys")
	}
}

func TestKey_EmptyTitlesCollapse(t *testing.T) {
	a := ViewingRecord{Service: ServiceNetflix}
	b := ViewingRecord{Service: ServiceNetflix, LastPosition: 42}
	if a.Key() != b.Key() {
		t.Fatal("expected title-less records for one service to share a key")
	}
}

func TestMerge_StructuralOverwrite(t *testing.T) {
	existing := ViewingRecord{
		MainTitle: "A", Service: ServiceNetflix,
		TotalDuration: 1000, WatchedDuration: 100, LastPosition: 100,
		Status: StatusInProgress, Genre: GenreAnime,
	}
	incoming := ViewingRecord{
		MainTitle: "A", Service: ServiceNetflix,
		TotalDuration: 1000, WatchedDuration: 920, LastPosition: 920,
		Status: StatusCompleted, Genre: GenreAnime,
	}
	existing.Merge(incoming)

	if existing.WatchedDuration != 920 {
		t.Fatalf("expected watched 920, got %v", existing.WatchedDuration)
	}
	if existing.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", existing.Status)
	}
}

func TestMerge_RatingFieldsOnlyWhenPresent(t *testing.T) {
	rating := 4
	comment := "great"
	yes := true
	existing := ViewingRecord{MainTitle: "A", Service: ServiceNetflix}
	existing.Merge(ViewingRecord{
		MainTitle: "A", Service: ServiceNetflix,
		Rating: &rating, Comment: &comment, HasRating: &yes,
	})

	if existing.Rating == nil || *existing.Rating != 4 {
		t.Fatal("expected rating 4 after rating merge")
	}

	// A later plain progress update must not clobber the rating group.
	existing.Merge(ViewingRecord{
		MainTitle: "A", Service: ServiceNetflix,
		WatchedDuration: 950, Status: StatusCompleted,
	})
	if existing.Rating == nil || *existing.Rating != 4 {
		t.Fatal("progress update clobbered rating")
	}
	if existing.Comment == nil || *existing.Comment != "great" {
		t.Fatal("progress update clobbered comment")
	}
	if !existing.Rated() {
		t.Fatal("progress update clobbered hasRating")
	}
	if existing.WatchedDuration != 950 {
		t.Fatalf("expected structural field updated, got %v", existing.WatchedDuration)
	}
}

func TestUpdate_ValidAction(t *testing.T) {
	if !(Update{Action: ActionUpdateVideoData}).ValidAction() {
		t.Fatal("updateVideoData should be valid")
	}
	if !(Update{Action: ActionUpdateRating}).ValidAction() {
		t.Fatal("updateRating should be valid")
	}
	if (Update{Action: "deleteEverything"}).ValidAction() {
		t.Fatal("unknown action should be invalid")
	}
}
