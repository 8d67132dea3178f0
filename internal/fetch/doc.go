// Package fetch downloads remote bundles into a local cache with HTTP
// revalidation. A cached bundle is revalidated with If-None-Match and
// If-Modified-Since; a 304 reuses the cached file without transferring any
// bytes. New content is written to a pending file and atomically renamed over
// the cache entry, so an interrupted download never leaves a partial file.
package fetch
