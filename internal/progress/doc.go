// Package progress carries live parser run progress. The pipeline emits
// events through a non-blocking Hub that batches them on a background
// goroutine and fans them out to pluggable sinks.
package progress
