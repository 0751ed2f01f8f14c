package feeds

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/domain"
)

const (
	atomNS   = "http://www.w3.org/2005/Atom"
	itunesNS = "http://www.itunes.com/dtds/podcast-1.0.dtd"
)

type rssDoc struct {
	XMLName  xml.Name `xml:"rss"`
	Version  string   `xml:"version,attr"`
	AtomNS   string   `xml:"xmlns:atom,attr"`
	ItunesNS string   `xml:"xmlns:itunes,attr,omitempty"`
	Channel  *channel `xml:"channel"`
}

type channel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate"`
	SelfLink      *atomLink `xml:"atom:link"`

	Author   string       `xml:"itunes:author,omitempty"`
	Summary  string       `xml:"itunes:summary,omitempty"`
	Image    *itunesImage `xml:"itunes:image,omitempty"`
	Explicit string       `xml:"itunes:explicit,omitempty"`

	Items []item `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type item struct {
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description"`
	GUID        guid       `xml:"guid"`
	PubDate     string     `xml:"pubDate,omitempty"`
	Categories  []string   `xml:"category,omitempty"`
	Enclosure   *enclosure `xml:"enclosure,omitempty"`

	Duration      string       `xml:"itunes:duration,omitempty"`
	EpisodeNumber int          `xml:"itunes:episode,omitempty"`
	Season        int          `xml:"itunes:season,omitempty"`
	ItemExplicit  string       `xml:"itunes:explicit,omitempty"`
	ItemImage     *itunesImage `xml:"itunes:image,omitempty"`
}

type guid struct {
	Value       string `xml:",chardata"`
	IsPermaLink string `xml:"isPermaLink,attr"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// BlogFeed renders a site's blog feed as RSS 2.0. Posts are expected in
// publish order, newest first, already filtered for drafts.
func BlogFeed(site config.SiteConfig, posts []domain.Post, now time.Time) ([]byte, error) {
	ch := &channel{
		Title:         site.Title,
		Link:          site.BaseURL,
		Description:   site.Description,
		Language:      site.Language,
		LastBuildDate: now.UTC().Format(time.RFC1123Z),
		SelfLink: &atomLink{
			Href: site.BaseURL + "/feed.xml",
			Rel:  "self",
			Type: "application/rss+xml",
		},
	}

	for _, p := range posts {
		link := site.BaseURL + "/blog/" + p.Slug
		if p.Canonical != "" {
			link = p.Canonical
		}
		it := item{
			Title:       p.Title,
			Link:        link,
			Description: p.Description,
			GUID:        guid{Value: link, IsPermaLink: "true"},
			Categories:  p.Tags,
		}
		if !p.PublishedAt.IsZero() {
			it.PubDate = p.PublishedAt.UTC().Format(time.RFC1123Z)
		}
		ch.Items = append(ch.Items, it)
	}

	return render(rssDoc{Version: "2.0", AtomNS: atomNS, Channel: ch})
}

// PodcastFeed renders a site's podcast feed as RSS 2.0 with iTunes
// extensions. Episodes without an audio enclosure are skipped.
func PodcastFeed(site config.SiteConfig, episodes []domain.Episode, now time.Time) ([]byte, error) {
	ch := &channel{
		Title:         site.Title,
		Link:          site.BaseURL,
		Description:   site.Description,
		Language:      site.Language,
		LastBuildDate: now.UTC().Format(time.RFC1123Z),
		SelfLink: &atomLink{
			Href: site.BaseURL + "/podcast.xml",
			Rel:  "self",
			Type: "application/rss+xml",
		},
		Author:   site.Title,
		Summary:  site.Description,
		Explicit: "false",
	}

	for _, e := range episodes {
		if e.AudioURL == "" {
			continue
		}
		it := item{
			Title:       e.Title,
			Link:        site.BaseURL + "/podcast/" + e.Slug,
			Description: e.Description,
			GUID:        guid{Value: episodeGUID(e), IsPermaLink: "false"},
			Enclosure: &enclosure{
				URL:    e.AudioURL,
				Length: e.AudioBytes,
				Type:   audioType(e),
			},
			Duration:      formatDuration(e.Duration),
			EpisodeNumber: e.Number,
			Season:        e.Season,
			ItemExplicit:  explicitTag(e.Explicit),
		}
		if e.Image != "" {
			it.ItemImage = &itunesImage{Href: e.Image}
		}
		if !e.PublishedAt.IsZero() {
			it.PubDate = e.PublishedAt.UTC().Format(time.RFC1123Z)
		}
		ch.Items = append(ch.Items, it)
	}

	return render(rssDoc{Version: "2.0", AtomNS: atomNS, ItunesNS: itunesNS, Channel: ch})
}

func render(doc rssDoc) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render feed: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

func episodeGUID(e domain.Episode) string {
	if e.GUID != "" {
		return e.GUID
	}
	return e.Site + "/" + e.Slug
}

func audioType(e domain.Episode) string {
	if e.AudioType != "" {
		return e.AudioType
	}
	if strings.HasSuffix(strings.ToLower(e.AudioURL), ".m4a") {
		return "audio/x-m4a"
	}
	return "audio/mpeg"
}

func explicitTag(explicit bool) string {
	if explicit {
		return "yes"
	}
	return "no"
}

// formatDuration renders seconds in the H:MM:SS form players expect.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
