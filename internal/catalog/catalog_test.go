package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafuse/mediafuse/internal/cache"
	"github.com/mediafuse/mediafuse/internal/config"
	"github.com/mediafuse/mediafuse/internal/identity"
	"github.com/mediafuse/mediafuse/internal/record"
	"github.com/mediafuse/mediafuse/internal/registry"
	"github.com/mediafuse/mediafuse/internal/source"
	"github.com/mediafuse/mediafuse/internal/source/mock"
	"github.com/mediafuse/mediafuse/internal/store"
)

func newTestService(t *testing.T, views []View, providers ...source.Provider) *Service {
	t.Helper()

	logger := zerolog.Nop()
	c, err := cache.New(cache.Config{DefaultTTL: time.Minute}, logger)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(c.Close)

	fetcher := source.NewFetcher(source.FetcherConfig{
		Timeout:       time.Second,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
		MaxConcurrent: 4,
	}, nil, logger)

	return New(Options{
		Providers: providers,
		Fetcher:   fetcher,
		Cache:     c,
		Resolver:  identity.NewResolver(0),
		Merger:    record.NewMerger(nil, nil, nil, 0),
		Views:     views,
	}, logger)
}

// Fixture names are built from word pairs instead of sequence numbers so no
// two generated titles land within the identity resolver's similarity
// threshold and merge by accident.
var (
	fixtureAdjectives = []string{
		"Crimson", "Silent", "Golden", "Broken", "Hidden", "Frozen", "Burning",
		"Scarlet", "Midnight", "Wandering", "Forgotten", "Electric", "Savage",
		"Gentle", "Hollow", "Distant", "Rusty", "Velvet", "Iron", "Paper",
	}
	fixtureNouns = []string{
		"Harbor", "Lantern", "Orchard", "Compass", "Thicket", "Monolith",
		"Estuary", "Pagoda", "Zeppelin", "Catacomb",
	}
)

func fixtureName(n int) string {
	adj := fixtureAdjectives[n%len(fixtureAdjectives)]
	noun := fixtureNouns[(n/len(fixtureAdjectives))%len(fixtureNouns)]
	return adj + " " + noun
}

func pageOf(sourceName string, start, count int, opts func(i int, r *source.Record)) []source.Record {
	records := make([]source.Record, 0, count)
	for i := 0; i < count; i++ {
		r := source.Record{
			ID:          fmt.Sprintf("%s:title-%d", sourceName, start+i),
			Name:        fixtureName(start + i),
			LastUpdated: time.Now(),
		}
		if opts != nil {
			opts(i, &r)
		}
		records = append(records, r)
	}
	return records
}

func TestServeAccumulatesUntilTargetReached(t *testing.T) {
	p := mock.New("source-1")
	p.SetPage(1, pageOf("source-1", 0, 20, nil))
	p.SetPage(2, pageOf("source-1", 20, 20, nil))
	p.SetPage(3, pageOf("source-1", 40, 20, nil))

	svc := newTestService(t, []View{{ID: "recent", Sort: SortAlphabetical}}, p)

	items, err := svc.Serve(context.Background(), Request{CatalogID: "recent", Skip: 20, Limit: 20})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(items) != 20 {
		t.Fatalf("expected 20 items, got %d", len(items))
	}

	// Target was 40, so pages 1 and 2 suffice. Page 3 must stay unfetched.
	if calls := p.CatalogCalls(); calls != 2 {
		t.Errorf("expected 2 catalog calls, got %d", calls)
	}
}

func TestServeConcurrentDeepWindowGetsFullPage(t *testing.T) {
	p := mock.New("source-1")
	for page := 1; page <= 10; page++ {
		p.SetPage(page, pageOf("source-1", (page-1)*20, 20, nil))
	}

	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p)

	// A shallow and a deep request race on the same cold key. The deep
	// caller must never be satisfied by the shallow caller's pass.
	var wg sync.WaitGroup
	var deep []record.Aggregated
	var deepErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20})
	}()
	go func() {
		defer wg.Done()
		deep, deepErr = svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 80, Limit: 20})
	}()
	wg.Wait()

	if deepErr != nil {
		t.Fatalf("deep Serve failed: %v", deepErr)
	}
	if len(deep) != 20 {
		t.Fatalf("deep caller got a short page: %d items", len(deep))
	}
}

func TestServeWindowedViewOverFetches(t *testing.T) {
	// 200 records, only every 10th updated inside the window. A plain
	// 20-item target would surface two survivors; the raised target keeps
	// accumulating so the window can actually fill.
	old := time.Now().Add(-30 * 24 * time.Hour)
	p := mock.New("source-1")
	for page := 1; page <= 10; page++ {
		p.SetPage(page, pageOf("source-1", (page-1)*20, 20, func(i int, r *source.Record) {
			if (i+(page-1)*20)%10 != 0 {
				r.LastUpdated = old
			}
		}))
	}

	view := View{ID: "trending-week", TimeWindow: 7 * 24 * time.Hour, Sort: SortAlphabetical}
	svc := newTestService(t, []View{view}, p)

	items, err := svc.Serve(context.Background(), Request{CatalogID: "trending-week", Skip: 0, Limit: 20})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	// Target = (0+20)*5 = 100 accumulated, of which 10 pass the window.
	if len(items) != 10 {
		t.Fatalf("expected 10 windowed items, got %d", len(items))
	}
	if calls := p.CatalogCalls(); calls != 5 {
		t.Errorf("expected 5 catalog calls for the raised target, got %d", calls)
	}

	state, ok := svc.StateSnapshot("trending-week", "")
	if !ok {
		t.Fatal("expected accumulation state to be persisted")
	}
	if len(state.Items) != 100 {
		t.Errorf("expected 100 accumulated items, got %d", len(state.Items))
	}
}

func TestServeMergesDuplicateAcrossSources(t *testing.T) {
	eight := 8.0
	p1 := mock.New("source-1")
	p1.SetPage(1, []source.Record{{
		ID: "source-1:sister-breeder", Name: "Sister Breeder",
		Rating: &eight, RatingType: source.RatingDirect, VoteCount: 100,
		LastUpdated: time.Now(),
	}})
	p2 := mock.New("source-2")
	p2.SetPage(1, []source.Record{{
		ID: "source-2:sister-breeder", Name: "sister-breeder",
		ViewCount: 15000, RatingType: source.RatingViews,
		Poster: "https://cdn.example/sb.jpg", LastUpdated: time.Now(),
	}})

	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p1, p2)

	items, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one merged record, got %d", len(items))
	}

	got := items[0]
	if !got.HasProvider("source-1") || !got.HasProvider("source-2") {
		t.Errorf("expected both providers, got %v", got.Providers)
	}
	if got.Rating == nil || *got.Rating != 8.0 {
		t.Errorf("expected direct rating 8.0 to win, got %v", got.Rating)
	}
	if got.Poster == "" {
		t.Error("expected poster filled from secondary source")
	}
}

func TestServeFailedSourceDegrades(t *testing.T) {
	p1 := mock.New("source-1")
	p1.SetPage(1, pageOf("source-1", 0, 5, nil))
	p2 := mock.New("source-2")
	p2.FailCatalog(errors.New("upstream down"))

	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p1, p2)

	items, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items from the healthy source, got %d", len(items))
	}
}

func TestServeUnknownView(t *testing.T) {
	svc := newTestService(t, nil, mock.New("source-1"))
	if _, err := svc.Serve(context.Background(), Request{CatalogID: "nope"}); !errors.Is(err, ErrUnknownView) {
		t.Fatalf("expected ErrUnknownView, got %v", err)
	}
}

func TestServeDropsMalformedRecords(t *testing.T) {
	p := mock.New("source-1")
	records := pageOf("source-1", 0, 3, nil)
	records = append(records, source.Record{ID: "source-1:no-name"})
	p.SetPage(1, records)

	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p)

	items, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected malformed record dropped, got %d items", len(items))
	}
}

func TestServeExhaustionMarksComplete(t *testing.T) {
	p := mock.New("source-1")
	p.SetPage(1, pageOf("source-1", 0, 5, nil))

	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p)

	if _, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	state, ok := svc.StateSnapshot("all", "")
	if !ok {
		t.Fatal("expected persisted state")
	}
	if !state.IsComplete {
		t.Error("expected state marked complete after an empty page")
	}

	// A second request must be served from state with no further fetches.
	before := p.CatalogCalls()
	if _, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20}); err != nil {
		t.Fatalf("second Serve failed: %v", err)
	}
	if p.CatalogCalls() != before {
		t.Error("expected complete state to serve without fetching")
	}
}

func TestServeBlacklistFiltersAfterSort(t *testing.T) {
	p := mock.New("source-1")
	p.SetPage(1, []source.Record{
		{ID: "source-1:a", Name: "Alpha", Genres: []string{"romance"}, LastUpdated: time.Now()},
		{ID: "source-1:b", Name: "Beta", Genres: []string{"ntr"}, LastUpdated: time.Now()},
		{ID: "source-1:c", Name: "Gamma", Studio: "Bad Studio", LastUpdated: time.Now()},
		{ID: "source-1:d", Name: "Delta", LastUpdated: time.Now()},
	})

	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p)

	items, err := svc.Serve(context.Background(), Request{
		CatalogID:        "all",
		Limit:            20,
		BlacklistGenres:  []string{"NTR"},
		BlacklistStudios: []string{"bad studio"},
	})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after blacklists, got %d", len(items))
	}
	if items[0].Name != "Alpha" || items[1].Name != "Delta" {
		t.Errorf("unexpected survivors: %s, %s", items[0].Name, items[1].Name)
	}
}

func TestSortStrategies(t *testing.T) {
	now := time.Now()
	nine, seven := 9.0, 7.0
	items := []record.Aggregated{
		{Name: "b-title", LastUpdated: now.Add(-2 * time.Hour), Rating: &seven, MetadataScore: 5},
		{Name: "a-title", LastUpdated: now, Rating: &nine, MetadataScore: 3},
		{Name: "c-title", LastUpdated: now.Add(-time.Hour), RatingIsNA: true, MetadataScore: 8},
	}

	cases := []struct {
		strategy SortStrategy
		first    string
	}{
		{SortRecency, "a-title"},
		{SortRating, "a-title"},
		{SortAlphabetical, "a-title"},
		{SortMetadataScore, "c-title"},
	}
	for _, tc := range cases {
		t.Run(string(tc.strategy), func(t *testing.T) {
			sorted := append([]record.Aggregated(nil), items...)
			sortItems(sorted, tc.strategy)
			if sorted[0].Name != tc.first {
				t.Errorf("expected %s first, got %s", tc.first, sorted[0].Name)
			}
		})
	}

	t.Run("rating sorts NA last", func(t *testing.T) {
		sorted := append([]record.Aggregated(nil), items...)
		sortItems(sorted, SortRating)
		if sorted[2].Name != "c-title" {
			t.Errorf("expected unrated record last, got %s", sorted[2].Name)
		}
	})
}

func TestWindowClampsOutOfRange(t *testing.T) {
	items := make([]record.Aggregated, 5)
	if got := window(items, 10, 20); len(got) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(got))
	}
	if got := window(items, 3, 20); len(got) != 2 {
		t.Errorf("expected clamped tail of 2, got %d", len(got))
	}
}

func TestRefreshRecentEarlyStop(t *testing.T) {
	p := mock.New("source-1")
	p.SetPage(1, pageOf("source-1", 0, 20, nil))

	svc := newTestService(t, []View{{ID: "all", Sort: SortRecency}}, p)
	svc.knownStreak = 5
	svc.refreshPages = 3

	// Build the initial state.
	if _, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	// Prepend two new titles; the rest of page 1 is already known, so the
	// scan must stop inside page 1 once the streak is hit.
	fresh := pageOf("source-1", 100, 2, nil)
	p.SetPage(1, append(fresh, pageOf("source-1", 0, 18, nil)...))
	before := p.CatalogCalls()

	if err := svc.RefreshRecent(context.Background(), "all"); err != nil {
		t.Fatalf("RefreshRecent failed: %v", err)
	}
	if calls := p.CatalogCalls() - before; calls != 1 {
		t.Errorf("expected early stop after page 1, got %d pages", calls)
	}

	state, ok := svc.StateSnapshot("all", "")
	if !ok {
		t.Fatal("expected persisted state")
	}
	if len(state.Items) != 22 {
		t.Errorf("expected 22 items after refresh, got %d", len(state.Items))
	}
}

func TestRefreshRecentFullFirstPage(t *testing.T) {
	p := mock.New("source-1")
	p.SetPage(1, pageOf("source-1", 0, 20, nil))

	svc := newTestService(t, []View{{ID: "all", Sort: SortRecency}}, p)
	svc.defs = &config.Definitions{Sources: []config.SourceDefinition{
		{Name: "source-1", FullFirstPage: true},
	}}

	if _, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	// New title buried at the END of page 1, behind a long run of known
	// ones. The streak rule alone would miss it.
	page := pageOf("source-1", 0, 19, nil)
	page = append(page, pageOf("source-1", 150, 1, nil)...)
	p.SetPage(1, page)

	if err := svc.RefreshRecent(context.Background(), "all"); err != nil {
		t.Fatalf("RefreshRecent failed: %v", err)
	}

	state, _ := svc.StateSnapshot("all", "")
	if len(state.Items) != 21 {
		t.Errorf("expected buried new title picked up, got %d items", len(state.Items))
	}
}

func TestRefreshRecentNoStateIsNoop(t *testing.T) {
	p := mock.New("source-1")
	svc := newTestService(t, []View{{ID: "all", Sort: SortRecency}}, p)

	if err := svc.RefreshRecent(context.Background(), "all"); err != nil {
		t.Fatalf("RefreshRecent failed: %v", err)
	}
	if p.CatalogCalls() != 0 {
		t.Error("expected no fetches without accumulated state")
	}
}

func TestSearchMergesAcrossSources(t *testing.T) {
	p1 := mock.New("source-1")
	p1.SetPage(1, []source.Record{{ID: "source-1:vampire-dawn", Name: "Vampire Dawn"}})
	p2 := mock.New("source-2")
	p2.SetPage(1, []source.Record{{ID: "source-2:vampire-dawn", Name: "vampire dawn"}})

	svc := newTestService(t, nil, p1, p2)

	results, err := svc.Search(context.Background(), "vampire")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one merged result, got %d", len(results))
	}
	if len(results[0].Providers) != 2 {
		t.Errorf("expected both providers on merged result, got %v", results[0].Providers)
	}
}

func TestMetadataMergesAndNotFound(t *testing.T) {
	detail := source.Record{
		ID: "source-1:alpha", Name: "Alpha",
		Description: "A long enough description about what actually happens in the story here.",
	}
	p := mock.New("source-1")
	p.SetDetail(detail)

	svc := newTestService(t, nil, p)

	got, err := svc.Metadata(context.Background(), "source-1:alpha")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if got.Name != "Alpha" {
		t.Errorf("unexpected record: %+v", got)
	}

	if _, err := svc.Metadata(context.Background(), "source-1:missing"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

// yearMock adds native year browsing on top of the plain mock provider.
type yearMock struct {
	*mock.Provider
	byYear map[int][]source.Record
}

func (m *yearMock) CatalogByYear(_ context.Context, year, _ int) ([]source.Record, error) {
	return m.byYear[year], nil
}

func TestBrowseYearFallsBackToLocalFilter(t *testing.T) {
	native := &yearMock{
		Provider: mock.New("source-1"),
		byYear: map[int][]source.Record{
			2023: {{ID: "source-1:alpha", Name: "Alpha", Year: 2023}},
		},
	}

	// No year browser; its generic page gets filtered locally.
	plain := mock.New("source-2")
	plain.SetPage(1, []source.Record{
		{ID: "source-2:beta", Name: "Beta", Year: 2023},
		{ID: "source-2:gamma", Name: "Gamma", Year: 1999},
	})

	svc := newTestService(t, nil, native, plain)

	items, err := svc.BrowseYear(context.Background(), 2023, 1)
	if err != nil {
		t.Fatalf("BrowseYear failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 records for 2023, got %d", len(items))
	}
	if items[0].Name != "Alpha" || items[1].Name != "Beta" {
		t.Errorf("unexpected results: %s, %s", items[0].Name, items[1].Name)
	}
}

func TestBrowseStudioFallsBackToLocalFilter(t *testing.T) {
	p := mock.New("source-1")
	p.SetPage(1, []source.Record{
		{ID: "source-1:alpha", Name: "Alpha", Studio: "Queen Bee"},
		{ID: "source-1:beta", Name: "Beta", Studio: "Other"},
	})

	svc := newTestService(t, nil, p)

	items, err := svc.BrowseStudio(context.Background(), "queen bee", 1)
	if err != nil {
		t.Fatalf("BrowseStudio failed: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Alpha" {
		t.Fatalf("unexpected results: %+v", items)
	}
}

func TestMetadataResolvesBareSlugThroughRegistry(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg, err := registry.New(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	detail := source.Record{
		ID: "source-1:sealed-tower", Name: "Sealed Tower",
		Description: "A young mage discovers a sealed tower on the edge of the kingdom and enters.",
	}
	p := mock.New("source-1")
	p.SetPage(1, []source.Record{{ID: detail.ID, Name: detail.Name}})
	p.SetDetail(detail)

	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p)
	svc.registry = reg

	// Serving the catalog registers the slug mapping.
	if _, err := svc.Serve(context.Background(), Request{CatalogID: "all", Limit: 20}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	got, err := svc.Metadata(context.Background(), "sealed-tower")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if got.ID != "source-1:sealed-tower" {
		t.Errorf("expected bare slug resolved to canonical id, got %q", got.ID)
	}
}

func TestSeedServesWithoutFetching(t *testing.T) {
	p := mock.New("source-1")
	svc := newTestService(t, []View{{ID: "all", Sort: SortAlphabetical}}, p)

	items := []record.Aggregated{
		{ID: "source-1:a", Name: "Alpha", Providers: []string{"source-1"}},
		{ID: "source-1:b", Name: "Beta", Providers: []string{"source-1"}},
	}
	if err := svc.Seed("all", "", items); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	got, err := svc.Serve(context.Background(), Request{CatalogID: "all", Skip: 0, Limit: 20})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 seeded items, got %d", len(got))
	}
	if p.CatalogCalls() != 0 {
		t.Error("expected seeded view to serve without fetching")
	}
}
