package api

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// gamePayload is the raw shape of one catalog entry. SeasonKeyword appears in
// both camel and snake case depending on the upstream version.
type gamePayload struct {
	Slug               string          `json:"slug"`
	Name               string          `json:"name"`
	SeasonKeyword      string          `json:"seasonKeyword"`
	SeasonKeywordSnake string          `json:"season_keyword"`
	Categories         json.RawMessage `json:"categories"`
}

// seasonEntry is one per-game item of the seasons endpoint: a current season
// block and, optionally, the next (upcoming) one.
type seasonEntry struct {
	Game    string       `json:"game"`
	Current *seasonBlock `json:"current"`
	Next    *seasonBlock `json:"next"`
}

type seasonBlock struct {
	Name          string `json:"name"`
	ID            any    `json:"id"`
	Slug          string `json:"slug"`
	Code          string `json:"code"`
	Start         string `json:"start"`
	End           string `json:"end"`
	URL           string `json:"url"`
	PatchNotesURL string `json:"patchNotesUrl"`
}

// normalizeGame converts a raw catalog entry into a Game. Returns nil for
// malformed entries; callers skip those without failing the whole list.
func normalizeGame(raw gamePayload) *Game {
	slug := strings.TrimSpace(raw.Slug)
	if slug == "" {
		return nil
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = titleCase(slug)
	}
	keyword := raw.SeasonKeyword
	if keyword == "" {
		keyword = raw.SeasonKeywordSnake
	}
	return &Game{
		Slug:          slug,
		Name:          name,
		SeasonKeyword: keyword,
		Categories:    normalizeCategories(raw.Categories),
	}
}

// normalizeCategories tolerates absent or wrong-shaped category lists by
// returning an empty list, and stringifies mixed-type entries.
func normalizeCategories(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringify(item))
	}
	return out
}

// seasonFromBlock builds a Season from the current or next block of a seasons
// entry. Returns nil when the block is absent or yields no usable key.
func seasonFromBlock(game string, block *seasonBlock, upcoming bool) *Season {
	if block == nil {
		return nil
	}
	gameSlug := strings.ToLower(strings.TrimSpace(game))
	gameName := "Unknown"
	if gameSlug != "" {
		gameName = titleCase(strings.ReplaceAll(gameSlug, "-", " "))
	}

	title := block.Name
	if title == "" {
		if upcoming {
			title = gameName + " Upcoming"
		} else {
			title = gameName + " Season"
		}
	}

	startsAt := parseTimestamp(block.Start)
	key := seasonKey(block, startsAt)
	if key == "" {
		return nil
	}

	return &Season{
		GameSlug:      gameSlug,
		GameName:      gameName,
		SeasonKey:     key,
		Title:         title,
		StartsAt:      startsAt,
		EndsAt:        parseTimestamp(block.End),
		URL:           block.URL,
		PatchNotesURL: block.PatchNotesURL,
	}
}

// seasonKey derives the dedup key for a season block: the declared name with
// id/slug/code fallbacks, suffixed with the start epoch when one is known.
// Current and next blocks of the same underlying season must yield the same
// key, so a season first seen as upcoming is not re-announced once active.
func seasonKey(block *seasonBlock, startsAt *time.Time) string {
	base := block.Name
	if base == "" {
		base = stringify(block.ID)
	}
	if base == "" {
		base = block.Slug
	}
	if base == "" {
		base = block.Code
	}
	if startsAt != nil {
		return fmt.Sprintf("%s:%d", base, startsAt.Unix())
	}
	return base
}

// parseTimestamp accepts ISO-8601 with or without an offset (a trailing Z
// included), assumes UTC when no offset is given, and normalizes to UTC.
// Unparseable or absent values yield nil, never an error.
func parseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		u := t.UTC()
		return &u
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// titleCase uppercases the first letter of every word, where words break on
// any non-letter rune ("last epoch" -> "Last Epoch").
func titleCase(s string) string {
	prevLetter := false
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			if prevLetter {
				prevLetter = true
				return unicode.ToLower(r)
			}
			prevLetter = true
			return unicode.ToUpper(r)
		}
		prevLetter = false
		return r
	}, s)
}
