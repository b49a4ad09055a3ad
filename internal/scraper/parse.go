// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/avhub/metabus/internal/models"
)

var (
	reDate       = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	reMinutes    = regexp.MustCompile(`(\d+)`)
	rePagePath   = regexp.MustCompile(`/(\d+)(?:\?|$)`)
	reBtih       = regexp.MustCompile(`(?i)btih:([a-f0-9]+)`)
	reSize       = regexp.MustCompile(`([\d.]+)\s*([KMGT]?B)`)
	reScriptGID  = regexp.MustCompile(`var\s+gid\s*=\s*(\d+)`)
	reScriptUC   = regexp.MustCompile(`var\s+uc\s*=\s*(\d+)`)
	reScriptImg  = regexp.MustCompile(`var\s+img\s*=\s*['"]([^'"]+)['"]`)
	coverAttrs   = []string{"data-src", "data-original", "data-echo", "src"}
	placeholders = []string{"loading", "blank"}
)

// resolveURL makes href absolute against base. Scheme-relative and already
// absolute hrefs pass through with minimal fixup.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	rel, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(rel).String()
}

func lastPathSegment(href string) string {
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	if idx := strings.LastIndex(href, "/"); idx >= 0 {
		return href[idx+1:]
	}
	return href
}

// imageAttr picks the first usable image URL from a lazy-loading img tag,
// skipping placeholder values.
func imageAttr(img *goquery.Selection) string {
	for _, attr := range coverAttrs {
		val, ok := img.Attr(attr)
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" || isPlaceholder(val) {
			continue
		}
		return val
	}
	return ""
}

func isPlaceholder(val string) bool {
	lower := strings.ToLower(val)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// parseSearchPage extracts movie cards and pagination from a listing page
// (search results, latest movies, or a star's filmography).
func parseSearchPage(doc *goquery.Document, baseURL string, currentPage int) ([]models.MovieSummary, models.Pagination) {
	var movies []models.MovieSummary

	doc.Find("#waterfall .item").Each(func(_ int, item *goquery.Selection) {
		box := item.Find("a.movie-box").First()
		if box.Length() == 0 {
			return
		}
		href, _ := box.Attr("href")
		id := lastPathSegment(href)
		if id == "" {
			return
		}

		summary := models.MovieSummary{ID: id}

		img := box.Find(".photo-frame img").First()
		summary.Img = resolveURL(baseURL, imageAttr(img))
		if title, ok := img.Attr("title"); ok {
			summary.Title = strings.TrimSpace(title)
		}

		// The photo-info block carries the code and release date as two
		// date elements.
		dates := box.Find(".photo-info date")
		if dates.Length() >= 1 {
			if code := strings.TrimSpace(dates.Eq(0).Text()); code != "" {
				summary.ID = code
			}
		}
		if dates.Length() >= 2 {
			summary.Date = strings.TrimSpace(dates.Eq(1).Text())
		}
		if summary.Title == "" {
			summary.Title = strings.TrimSpace(box.Find(".photo-info span").First().Contents().First().Text())
		}

		item.Find(".item-tag button").Each(func(_ int, btn *goquery.Selection) {
			if tag := strings.TrimSpace(btn.Text()); tag != "" {
				summary.Tags = append(summary.Tags, tag)
			}
		})

		movies = append(movies, summary)
	})

	return movies, parsePagination(doc, currentPage)
}

// parsePagination reads the page links at the bottom of a listing. The origin
// renders a sliding window of page numbers, so the max link only bounds
// hasNextPage, not the overall total.
func parsePagination(doc *goquery.Document, currentPage int) models.Pagination {
	if currentPage < 1 {
		currentPage = 1
	}

	seen := map[int]bool{currentPage: true}
	doc.Find("ul.pagination a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		m := rePagePath.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if page, err := strconv.Atoi(m[1]); err == nil && page > 0 {
			seen[page] = true
		}
	})

	pages := make([]int, 0, len(seen))
	for page := range seen {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	pagination := models.Pagination{
		CurrentPage: currentPage,
		Pages:       pages,
	}
	if max := pages[len(pages)-1]; currentPage < max {
		pagination.HasNextPage = true
		pagination.NextPage = currentPage + 1
	}
	return pagination
}

// parseDetailPage extracts the full record, including the session tokens
// needed for a follow-up magnet fetch, from a movie detail page.
func parseDetailPage(doc *goquery.Document, rawHTML, id, baseURL, pageURL string) (*models.MovieDetail, error) {
	title := strings.TrimSpace(doc.Find("h3").First().Text())
	if title == "" {
		return nil, &ParseError{URL: pageURL, Reason: "missing title"}
	}
	if !strings.HasPrefix(title, id) {
		title = id + " " + title
	}

	detail := &models.MovieDetail{
		MovieSummary: models.MovieSummary{ID: id, Title: title},
	}

	if cover, ok := doc.Find("a.bigImage").First().Attr("href"); ok {
		detail.Img = resolveURL(baseURL, cover)
	}

	doc.Find(".info p").Each(func(_ int, p *goquery.Selection) {
		header := strings.TrimSpace(p.Find("span.header").First().Text())
		switch {
		case strings.Contains(header, "發行日期"):
			if m := reDate.FindStringSubmatch(p.Text()); m != nil {
				detail.Date = m[1]
			}
		case strings.Contains(header, "長度"):
			if m := reMinutes.FindStringSubmatch(p.Text()); m != nil {
				detail.VideoLength, _ = strconv.Atoi(m[1])
			}
		case strings.Contains(header, "導演"):
			detail.Director = parseRefLink(p.Find("a").First())
		case strings.Contains(header, "製作商"):
			detail.Producer = parseRefLink(p.Find("a").First())
		case strings.Contains(header, "發行商"):
			detail.Publisher = parseRefLink(p.Find("a").First())
		case strings.Contains(header, "系列"):
			detail.Series = parseRefLink(p.Find("a").First())
		}
	})

	doc.Find("span.genre a").Each(func(_ int, a *goquery.Selection) {
		// Star checkboxes reuse the genre span class; those link under
		// /star/ and are collected separately below.
		if href, _ := a.Attr("href"); strings.Contains(href, "/star/") {
			return
		}
		if ref := parseRefLink(a); ref != nil {
			detail.Genres = append(detail.Genres, *ref)
		}
	})

	doc.Find("div.star-name a").Each(func(_ int, a *goquery.Selection) {
		if ref := parseRefLink(a); ref != nil {
			detail.Stars = append(detail.Stars, *ref)
		}
	})

	doc.Find("#sample-waterfall .sample-box").Each(func(i int, box *goquery.Selection) {
		sample := models.Sample{
			Alt: fmt.Sprintf("%s - 樣品圖像 - %d", title, i+1),
		}
		if href, ok := box.Attr("href"); ok {
			sample.Src = resolveURL(baseURL, href)
		}
		sample.Thumbnail = resolveURL(baseURL, imageAttr(box.Find("img").First()))
		source := sample.Src
		if source == "" {
			source = sample.Thumbnail
		}
		name := lastPathSegment(source)
		if idx := strings.LastIndex(name, "."); idx > 0 {
			name = name[:idx]
		}
		sample.ID = name
		detail.Samples = append(detail.Samples, sample)
	})

	if m := reScriptGID.FindStringSubmatch(rawHTML); m != nil {
		detail.Tokens.GID = m[1]
	}
	if m := reScriptUC.FindStringSubmatch(rawHTML); m != nil {
		detail.Tokens.UC = m[1]
	}
	if m := reScriptImg.FindStringSubmatch(rawHTML); m != nil {
		detail.Tokens.Img = m[1]
	}

	return detail, nil
}

func parseRefLink(a *goquery.Selection) *models.Ref {
	if a.Length() == 0 {
		return nil
	}
	name := strings.TrimSpace(a.Text())
	if name == "" {
		return nil
	}
	href, _ := a.Attr("href")
	return &models.Ref{ID: lastPathSegment(href), Name: name}
}

// parseMagnets extracts magnet rows from the ajax table fragment. Rows are
// deduplicated by info hash; links without a parseable hash are dropped.
func parseMagnets(doc *goquery.Document) []models.Magnet {
	var magnets []models.Magnet
	seen := map[string]bool{}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find(`a[href^="magnet:"]`).First()
		if anchor.Length() == 0 {
			return
		}
		link, _ := anchor.Attr("href")

		m := reBtih.FindStringSubmatch(link)
		if m == nil {
			return
		}

		magnet := models.Magnet{Link: link, ID: strings.ToLower(m[1])}
		if seen[magnet.ID] {
			return
		}

		if parsed, err := url.Parse(link); err == nil {
			magnet.Title = strings.TrimSpace(parsed.Query().Get("dn"))
		}
		if magnet.Title == "" {
			magnet.Title = strings.TrimSpace(anchor.Text())
		}

		cells := row.Find("td")
		if cells.Length() >= 2 {
			magnet.Size = strings.TrimSpace(cells.Eq(1).Find("a").First().Text())
			if magnet.Size == "" {
				magnet.Size = strings.TrimSpace(cells.Eq(1).Text())
			}
		}
		if magnet.Size == "" {
			magnet.Size = strings.TrimSpace(row.Find(`a[title="檔案大小"]`).First().Text())
		}
		magnet.NumberSize = parseByteSize(magnet.Size)

		var shareDate string
		if cells.Length() >= 3 {
			shareDate = strings.TrimSpace(cells.Eq(2).Text())
		}
		if shareDate == "" {
			shareDate = strings.TrimSpace(row.Find(`a[title="上傳日期"]`).First().Text())
		}
		if m := reDate.FindStringSubmatch(shareDate); m != nil {
			magnet.ShareDate = m[1]
		}

		rowText := row.Text()
		magnet.IsHD = strings.Contains(rowText, "高清") || strings.Contains(rowText, "HD") ||
			row.Find("span.btn-primary").FilterFunction(hasClassContaining("hd")).Length() > 0
		magnet.HasSubtitle = strings.Contains(rowText, "字幕") || strings.Contains(rowText, "中文") ||
			row.Find("span.btn-primary").FilterFunction(hasClassContaining("sub")).Length() > 0

		seen[magnet.ID] = true
		magnets = append(magnets, magnet)
	})

	return magnets
}

func hasClassContaining(fragment string) func(int, *goquery.Selection) bool {
	return func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return strings.Contains(strings.ToLower(class), fragment)
	}
}

func parseByteSize(size string) int64 {
	m := reSize.FindStringSubmatch(strings.ToUpper(size))
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	multiplier := float64(1)
	switch m[2] {
	case "KB":
		multiplier = 1 << 10
	case "MB":
		multiplier = 1 << 20
	case "GB":
		multiplier = 1 << 30
	case "TB":
		multiplier = 1 << 40
	}
	return int64(value * multiplier)
}

// parseStarPage extracts a performer profile from a star listing page.
func parseStarPage(doc *goquery.Document, id, baseURL string) (*models.StarDetail, error) {
	frame := doc.Find(".avatar-box .photo-info").First()

	star := &models.StarDetail{
		ID:     id,
		Avatar: fmt.Sprintf("%s/pics/actress/%s_a.jpg", strings.TrimRight(baseURL, "/"), id),
	}

	star.Name = strings.TrimSpace(frame.Find("span.pb10").First().Text())
	if star.Name == "" {
		if title, ok := doc.Find(".avatar-box img").First().Attr("title"); ok {
			star.Name = strings.TrimSpace(title)
		}
	}
	if star.Name == "" {
		return nil, &ParseError{URL: baseURL, Reason: "missing star name"}
	}

	frame.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		key, value, ok := splitProfileField(text)
		if !ok {
			return
		}
		switch {
		case strings.Contains(key, "生日"):
			star.Birthday = value
		case strings.Contains(key, "年齡"):
			star.Age = value
		case strings.Contains(key, "身高"):
			star.Height = value
		case strings.Contains(key, "胸圍"):
			star.Bust = value
		case strings.Contains(key, "腰圍"):
			star.Waistline = value
		case strings.Contains(key, "臀圍"):
			star.Hipline = value
		case strings.Contains(key, "出生地"):
			star.Birthplace = value
		case strings.Contains(key, "愛好"):
			star.Hobby = value
		}
	})

	return star, nil
}

func splitProfileField(text string) (key, value string, ok bool) {
	for _, sep := range []string{"：", ":"} {
		if idx := strings.Index(text, sep); idx >= 0 {
			key = strings.TrimSpace(text[:idx])
			value = strings.TrimSpace(text[idx+len(sep):])
			return key, value, key != "" && value != ""
		}
	}
	return "", "", false
}
