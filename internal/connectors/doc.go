// Package connectors holds document sources. Documents are acquired and
// tagged here, at the caller boundary, and handed to the core as
// domain.Document values; the core never reads files itself.
package connectors
