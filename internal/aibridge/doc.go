// Package aibridge implements scraping.AIBridge on the Gemini API.
//
// Every call is a single round trip with no retry and no caching. Responses are
// treated as untrusted: structured output is decoded leniently and coerced into
// the domain types, and malformed structure collapses to an empty result.
package aibridge
