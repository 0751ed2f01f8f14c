// Package hits is the analytics ingest pipeline: redirect hits and site
// engagement events are published fire-and-forget from the request path,
// carried over SQS (or written straight to Postgres when no queue is
// configured), and persisted by the consumer. Recording is strictly
// best-effort; a visitor is never made to wait on analytics.
package hits
