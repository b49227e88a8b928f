package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/mediafuse/mediafuse/internal/record"
)

// applyFilters derives the working set from a raw accumulation. The raw set
// is never mutated; filter stages run in a fixed order so the same request
// always sees the same page boundaries:
//
//	denylist -> view genre -> time window -> sort -> caller blacklists
//
// The sort runs before caller blacklists so blacklist changes remove rows
// without reshuffling the order of the survivors.
func (s *Service) applyFilters(items []record.Aggregated, view View, req Request) []record.Aggregated {
	working := make([]record.Aggregated, 0, len(items))
	for _, item := range items {
		if s.deny != nil && s.deny.IsDenied(item.ID) {
			continue
		}
		working = append(working, item)
	}

	if view.Genre != "" {
		working = filterGenre(working, view.Genre)
	}

	if view.Windowed() {
		working = filterWindow(working, view.TimeWindow)
	}

	sortItems(working, view.Sort)

	if len(req.BlacklistGenres) > 0 {
		working = filterBlacklistGenres(working, req.BlacklistGenres)
	}
	if len(req.BlacklistStudios) > 0 {
		working = filterBlacklistStudios(working, req.BlacklistStudios)
	}

	return working
}

// filterGenre keeps records carrying the view's tag. Sources already filter
// upstream, but merged records can inherit pages fetched for other views.
func filterGenre(items []record.Aggregated, genre string) []record.Aggregated {
	out := items[:0]
	for _, item := range items {
		for _, g := range item.Genres {
			if strings.EqualFold(g, genre) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// filterWindow keeps records updated within the window. Records with no
// update timestamp cannot prove recency and are excluded.
func filterWindow(items []record.Aggregated, window time.Duration) []record.Aggregated {
	cutoff := time.Now().Add(-window)
	out := items[:0]
	for _, item := range items {
		if !item.LastUpdated.IsZero() && item.LastUpdated.After(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

func filterBlacklistGenres(items []record.Aggregated, blacklist []string) []record.Aggregated {
	out := items[:0]
	for _, item := range items {
		blocked := false
		for _, g := range item.Genres {
			for _, b := range blacklist {
				if strings.EqualFold(g, b) {
					blocked = true
					break
				}
			}
			if blocked {
				break
			}
		}
		if !blocked {
			out = append(out, item)
		}
	}
	return out
}

func filterBlacklistStudios(items []record.Aggregated, blacklist []string) []record.Aggregated {
	out := items[:0]
	for _, item := range items {
		blocked := false
		for _, b := range blacklist {
			if strings.EqualFold(item.Studio, b) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, item)
		}
	}
	return out
}

// sortItems orders the working set in place. Every strategy breaks ties on
// name so pagination stays stable across requests.
func sortItems(items []record.Aggregated, strategy SortStrategy) {
	switch strategy {
	case SortRecency:
		sort.Slice(items, func(i, j int) bool {
			if !items[i].LastUpdated.Equal(items[j].LastUpdated) {
				return items[i].LastUpdated.After(items[j].LastUpdated)
			}
			return items[i].Name < items[j].Name
		})
	case SortRating:
		sort.Slice(items, func(i, j int) bool {
			ri, rj := ratingValue(items[i]), ratingValue(items[j])
			if ri != rj {
				return ri > rj
			}
			return items[i].Name < items[j].Name
		})
	case SortAlphabetical:
		sort.Slice(items, func(i, j int) bool {
			return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
		})
	case SortMetadataScore:
		sort.Slice(items, func(i, j int) bool {
			if items[i].MetadataScore != items[j].MetadataScore {
				return items[i].MetadataScore > items[j].MetadataScore
			}
			return items[i].Name < items[j].Name
		})
	}
}

// ratingValue orders rated records above unrated ones.
func ratingValue(item record.Aggregated) float64 {
	if item.RatingIsNA || item.Rating == nil {
		return -1
	}
	return *item.Rating
}

// window slices one page out of the working set, clamping out-of-range
// requests to empty rather than erroring.
func window(items []record.Aggregated, skip, limit int) []record.Aggregated {
	if skip >= len(items) {
		return []record.Aggregated{}
	}
	end := skip + limit
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
