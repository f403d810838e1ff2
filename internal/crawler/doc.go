// Package crawler defines the core types shared across subsystems: the
// frontier record model, the store and fetcher interfaces, and the URL
// normalization rules every worker applies to discovered links.
package crawler
