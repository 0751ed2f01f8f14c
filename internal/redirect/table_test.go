package redirect

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/promo-gateway/internal/domain"
)

func TestBuildRendersDestinationTemplates(t *testing.T) {
	in := testSite()
	in.Static = []domain.Redirect{
		{Path: "/coupons-page", Destination: "{{ site.base_url }}/coupons"},
	}
	in.Coupons = []domain.Coupon{
		{
			Slug:     "acme-save20",
			Title:    "Save 20%",
			Merchant: "Acme & Co",
			Code:     "SAVE 20",
			Redirect: &domain.RedirectSpec{
				Path:        "/save20",
				Destination: "https://partner.example/track?m={{ merchant | urlencode }}&c={{ code | urlencode }}",
			},
		},
	}
	table := Build([]SiteInput{in})
	now := time.Now()

	res, ok := table.Resolve("getmecoupons", "/coupons-page", nil, now)
	require.True(t, ok)
	assert.Equal(t, "https://getmecoupons.net/coupons", res.Location)

	res, ok = table.Resolve("getmecoupons", "/save20", nil, now)
	require.True(t, ok)
	u, err := url.Parse(res.Location)
	require.NoError(t, err)
	assert.Equal(t, "Acme & Co", u.Query().Get("m"))
	assert.Equal(t, "SAVE 20", u.Query().Get("c"))
}

func TestBuildDropsInvalidEntries(t *testing.T) {
	in := testSite()
	in.Static = []domain.Redirect{
		{Path: "/api/hijack", Destination: "https://example.com"},
		{Path: "/bad-scheme", Destination: "ftp://example.com/file"},
		{Path: "/no-dest", Destination: ""},
		{Path: "/proto-relative", Destination: "//evil.example.com"},
		{Path: "/bad-template", Destination: "{{ site.base_url "},
		{Path: "/ok", Destination: "https://example.com/ok"},
	}
	table := Build([]SiteInput{in})

	assert.Equal(t, 1, table.Stats().Entries)
	_, ok := table.Resolve("getmecoupons", "/ok", nil, time.Now())
	assert.True(t, ok)
}

func TestBuildSkipsInactiveAndDrafts(t *testing.T) {
	in := testSite()
	in.Managed = []domain.ManagedRedirect{
		{ID: "on", Path: "/on", Destination: "https://example.com/on", Active: true},
		{ID: "off", Path: "/off", Destination: "https://example.com/off", Active: false},
	}
	in.Campaigns = []domain.Campaign{
		{
			Slug:     "draft-camp",
			Title:    "Draft",
			Draft:    true,
			Redirect: &domain.RedirectSpec{Path: "/draft", Destination: "https://example.com/d"},
		},
		{Slug: "no-redirect", Title: "No Redirect"},
	}
	table := Build([]SiteInput{in})
	now := time.Now()

	_, ok := table.Resolve("getmecoupons", "/on", nil, now)
	assert.True(t, ok)
	_, ok = table.Resolve("getmecoupons", "/off", nil, now)
	assert.False(t, ok, "inactive managed row never enters the table")
	_, ok = table.Resolve("getmecoupons", "/draft", nil, now)
	assert.False(t, ok, "draft promo records never enter the table")
}

func TestBuildRelativeDestinations(t *testing.T) {
	in := testSite()
	in.Static = []domain.Redirect{
		{Path: "/deals", Destination: "/coupons", UTM: domain.UTMParams{Source: "internal"}},
	}
	table := Build([]SiteInput{in})

	res, ok := table.Resolve("getmecoupons", "/deals", nil, time.Now())
	require.True(t, ok)
	assert.Equal(t, "/coupons?utm_source=internal", res.Location)
}

func TestBuildMultipleSites(t *testing.T) {
	gmc := testSite()
	gmc.Static = []domain.Redirect{{Path: "/shared", Destination: "https://gmc.example.com"}}

	db := SiteInput{Key: "discountblog", BaseURL: "https://discountblog.com", Title: "Discount Blog"}
	db.Static = []domain.Redirect{{Path: "/shared", Destination: "https://db.example.com"}}

	table := Build([]SiteInput{gmc, db})
	now := time.Now()

	res, ok := table.Resolve("getmecoupons", "/shared", nil, now)
	require.True(t, ok)
	assert.Equal(t, "https://gmc.example.com", res.Location)

	res, ok = table.Resolve("discountblog", "/shared", nil, now)
	require.True(t, ok)
	assert.Equal(t, "https://db.example.com", res.Location)

	stats := table.Stats()
	assert.Equal(t, 2, stats.Sites)
	assert.Equal(t, 2, stats.Entries)
}
