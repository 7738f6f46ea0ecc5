// Package crawler walks a source's list pages, category pages and detail
// pages and yields classified equipment candidates as a lazy sequence.
package crawler
