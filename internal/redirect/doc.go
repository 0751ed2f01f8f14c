// Package redirect builds and serves the per-site redirect table.
//
// A table is assembled from three sources in precedence order: managed
// rows from Postgres, static entries from each site's redirects.yaml,
// and promo entries declared on campaign and coupon records. Building
// happens off the request path (on content sync); serving is a map
// lookup against an immutable table swapped into the Resolver.
//
// Activity windows are evaluated at resolve time, not build time, so a
// campaign that opens at midnight starts redirecting at midnight even
// if the last sync ran hours earlier.
package redirect
