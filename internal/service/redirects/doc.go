// Package redirects implements managed redirect administration.
//
// Managed redirects are the operator-created rows layered on top of the
// file-defined static and promo entries; they are the only redirect
// source editable at runtime. The service validates paths and
// destinations, enforces one row per site and path, and leaves
// persistence to repository interfaces defined in this package.
//
// Repository implementations live in repository/postgres/.
package redirects
