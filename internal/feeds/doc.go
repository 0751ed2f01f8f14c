// Package feeds renders the per-site RSS surfaces and ingests remote
// podcast feeds.
//
// Generation is plain RSS 2.0 for the blog feed and RSS 2.0 with iTunes
// extensions for the podcast feed; both are rebuilt on content sync and
// served as static documents. Ingestion pulls a site's external podcast
// feed (the episodes hosted with the podcast provider) and converts the
// items into episode records merged alongside local content.
package feeds
