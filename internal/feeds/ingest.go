package feeds

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ignite/promo-gateway/internal/domain"
)

// Ingester pulls a remote podcast feed and converts its items into
// episode records. One ingester is shared across sites; gofeed's parser
// is stateless per call.
type Ingester struct {
	parser *gofeed.Parser
}

// NewIngester creates an ingester whose fetches time out after the
// given duration.
func NewIngester(timeout time.Duration) *Ingester {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "promo-gateway-feed-ingest/1.0"
	return &Ingester{parser: parser}
}

// FetchEpisodes fetches and parses feedURL for the given site. Items
// without an audio enclosure are counted as skipped, not errors.
func (in *Ingester) FetchEpisodes(ctx context.Context, site, feedURL string) ([]domain.Episode, int, error) {
	feed, err := in.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch feed: %w", err)
	}

	var episodes []domain.Episode
	skipped := 0
	for _, it := range feed.Items {
		ep, ok := parseEpisode(site, it)
		if !ok {
			skipped++
			continue
		}
		episodes = append(episodes, ep)
	}
	return episodes, skipped, nil
}

func parseEpisode(site string, it *gofeed.Item) (domain.Episode, bool) {
	ep := domain.Episode{
		Site:        site,
		GUID:        it.GUID,
		Title:       it.Title,
		Description: StripHTML(it.Description),
		Ingested:    true,
	}

	// Use link as GUID if none provided
	if ep.GUID == "" {
		ep.GUID = it.Link
	}

	ep.Slug = Slugify(it.Title)
	if ep.Slug == "" || ep.Title == "" {
		return domain.Episode{}, false
	}

	for _, enc := range it.Enclosures {
		if strings.HasPrefix(enc.Type, "audio/") {
			ep.AudioURL = enc.URL
			ep.AudioType = enc.Type
			if n, err := strconv.ParseInt(enc.Length, 10, 64); err == nil {
				ep.AudioBytes = n
			}
			break
		}
	}
	if ep.AudioURL == "" {
		return domain.Episode{}, false
	}

	if it.PublishedParsed != nil {
		ep.PublishedAt = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		ep.PublishedAt = *it.UpdatedParsed
	} else {
		ep.PublishedAt = time.Now()
	}

	if it.ITunesExt != nil {
		ep.Duration = ParseDuration(it.ITunesExt.Duration)
		ep.Explicit = it.ITunesExt.Explicit == "yes" || it.ITunesExt.Explicit == "true"
		if n, err := strconv.Atoi(it.ITunesExt.Episode); err == nil {
			ep.Number = n
		}
		if n, err := strconv.Atoi(it.ITunesExt.Season); err == nil {
			ep.Season = n
		}
		if it.ITunesExt.Image != "" {
			ep.Image = it.ITunesExt.Image
		}
	}
	if ep.Image == "" && it.Image != nil {
		ep.Image = it.Image.URL
	}

	return ep, true
}

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	slugPattern    = regexp.MustCompile(`[^a-z0-9]+`)
)

// StripHTML removes tags and entities from feed HTML, leaving plain
// text with normalized whitespace.
func StripHTML(input string) string {
	text := htmlTagPattern.ReplaceAllString(input, "")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// Slugify turns a title into a URL slug: lowercase, alphanumerics
// preserved, everything else collapsed into single hyphens.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ParseDuration reads an itunes:duration value in either plain seconds
// ("1845") or clock form ("30:45", "1:02:33") and returns seconds.
func ParseDuration(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if !strings.Contains(raw, ":") {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}

	parts := strings.Split(raw, ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
