// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "strings"

// FilterKind identifies the single filter a catalog query may carry.
type FilterKind string

const (
	FilterStar     FilterKind = "star"
	FilterGenre    FilterKind = "genre"
	FilterDirector FilterKind = "director"
	FilterStudio   FilterKind = "studio"
	FilterLabel    FilterKind = "label"
	FilterSeries   FilterKind = "series"
)

// SearchQuery describes one catalog search. At most one filter is honored;
// keyword takes precedence over filters when both are set.
type SearchQuery struct {
	Keyword        string
	FilterType     FilterKind
	FilterValue    string
	UncensoredOnly bool
	Page           int
}

// NormalizeID canonicalizes a catalog identifier: trimmed, uppercased,
// internal whitespace collapsed to hyphens. The normalized form is the cache
// key across every tier.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.Join(strings.Fields(id), "-")
	return strings.ToUpper(id)
}

// MovieSummary is the card-level record produced by search/list parsing.
type MovieSummary struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Img   string   `json:"img"`
	Date  string   `json:"date"`
	Tags  []string `json:"tags"`
}

// Pagination mirrors the origin site's pager: the page list feeds a pager
// control, nextPage is only meaningful when HasNextPage is set.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	HasNextPage bool  `json:"hasNextPage"`
	NextPage    int   `json:"nextPage"`
	Pages       []int `json:"pages"`
}

// SearchResultPage is one page of summaries plus pager metadata.
type SearchResultPage struct {
	Movies     []MovieSummary `json:"movies"`
	Pagination Pagination     `json:"pagination"`
	Keyword    string         `json:"keyword,omitempty"`
}

// Ref is an {id,name} pair scraped from a detail-page link (director,
// producer, publisher, series, genre, star).
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Sample is one preview image. Src is empty when the origin only serves a
// thumbnail for the slot.
type Sample struct {
	ID        string `json:"id"`
	Thumbnail string `json:"thumbnail"`
	Src       string `json:"src,omitempty"`
	Alt       string `json:"alt"`
}

// SessionTokens are harvested from detail-page scripts and authorize the
// follow-up magnet fetch for the same title.
type SessionTokens struct {
	GID string `json:"gid"`
	UC  string `json:"uc"`
	Img string `json:"-"`
}

// Magnet is one magnet-list row. ID is the lowercase btih info hash used to
// deduplicate entries.
type Magnet struct {
	ID          string `json:"id"`
	Link        string `json:"link"`
	Title       string `json:"title"`
	Size        string `json:"size"`
	NumberSize  int64  `json:"numberSize"`
	ShareDate   string `json:"shareDate"`
	IsHD        bool   `json:"isHD"`
	HasSubtitle bool   `json:"hasSubtitle"`
}

// MovieDetail is the full record for one title. Magnets is non-empty only
// after a magnet fetch with this record's tokens succeeded at least once; a
// failed magnet fetch leaves an otherwise complete detail with Magnets nil.
type MovieDetail struct {
	MovieSummary

	VideoLength int           `json:"videoLength,omitempty"`
	Director    *Ref          `json:"director"`
	Producer    *Ref          `json:"producer"`
	Publisher   *Ref          `json:"publisher"`
	Series      *Ref          `json:"series"`
	Genres      []Ref         `json:"genres"`
	Stars       []Ref         `json:"stars"`
	Samples     []Sample      `json:"samples"`
	Tokens      SessionTokens `json:"-"`
	Magnets     []Magnet      `json:"magnets"`
}

// StarDetail is a performer profile scraped from the origin's star page.
type StarDetail struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	Birthday   string `json:"birthday,omitempty"`
	Age        string `json:"age,omitempty"`
	Height     string `json:"height,omitempty"`
	Bust       string `json:"bust,omitempty"`
	Waistline  string `json:"waistline,omitempty"`
	Hipline    string `json:"hipline,omitempty"`
	Birthplace string `json:"birthplace,omitempty"`
	Hobby      string `json:"hobby,omitempty"`
}
