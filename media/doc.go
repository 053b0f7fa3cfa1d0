// Package media defines the value types shared by every stage of the ingest
// pipeline: the enumerated media, stream, codec and container kinds, the
// routing key of a published track, and the reconstructed media packet that
// leaves the depacketizers.
//
// Kinds arrive as strings in track metadata. They are parsed once, when the
// track is admitted, with ParseMediaKind and ParseStreamKind; everything
// downstream works with the enumerations only.
package media
