// Package watch turns filesystem notifications into change events for the
// supervisor. A Source walks the configured roots and publishes RawEvents; a
// Filter drops events that carry no modification signal or point at paths
// that are already gone, and stamps the survivors with the time they were
// observed.
package watch
