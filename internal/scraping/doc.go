// Package scraping defines the project registry model shared across the dashboard:
// project records, chat messages, AI request/response shapes, and the small interfaces
// (stores, AI bridge, blob archive, publisher) that the rest of the service depends on.
//
// Spider code is an opaque text blob. Nothing in this module executes it.
package scraping
