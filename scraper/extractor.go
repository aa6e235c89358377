package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
)

// Selectors for the repeating card structure on the listing page.
const (
	// CardSelector matches one listed post.
	CardSelector = "ul.aws-directories-container li"

	cardInfoSelector  = "div.m-card-info"
	cardTitleSelector = "div.m-card-title a"
	cardDescSelector  = "div.m-card-description"
)

// ExtractCard reads one card into a PostRecord. It reports false when the
// card is malformed -- a missing or blank info line, fewer than two info
// segments, or a title link without both text and href. A malformed card
// never aborts the page scan; the caller simply skips it.
func ExtractCard(card *goquery.Selection) (blogwatch.PostRecord, bool) {
	info := card.Find(cardInfoSelector)
	if info.Length() == 0 {
		log.Debug().Msg("No info element found in card")
		return blogwatch.PostRecord{}, false
	}

	infoText := strings.TrimSpace(info.First().Text())
	if infoText == "" {
		log.Debug().Msg("Empty info text found")
		return blogwatch.PostRecord{}, false
	}

	parts := strings.Split(infoText, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 {
		log.Debug().Strs("parts", parts).Msg("Insufficient info segments")
		return blogwatch.PostRecord{}, false
	}

	publishedDate := parts[len(parts)-1]
	author := strings.Join(parts[:len(parts)-1], ", ")

	anchor := card.Find(cardTitleSelector)
	if anchor.Length() == 0 {
		log.Debug().Msg("No title anchor found")
		return blogwatch.PostRecord{}, false
	}

	title := strings.TrimSpace(anchor.First().Text())
	href, _ := anchor.First().Attr("href")
	url := strings.TrimSpace(href)
	if title == "" || url == "" {
		log.Debug().Msg("Missing title or URL")
		return blogwatch.PostRecord{}, false
	}

	description := strings.TrimSpace(card.Find(cardDescSelector).First().Text())

	return blogwatch.PostRecord{
		Title:         title,
		URL:           url,
		Author:        author,
		PublishedDate: publishedDate,
		Description:   description,
	}, true
}
