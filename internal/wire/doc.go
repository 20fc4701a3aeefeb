// Package wire serializes typed payloads and frames them with a
// length-delimited topic tag.
//
// A frame on any transport looks like:
//
//	uvarint(len(topic)) | topic | codec payload
//
// The tag lets a subscriber reject frames that belong to another topic
// before attempting to parse the payload.
package wire
