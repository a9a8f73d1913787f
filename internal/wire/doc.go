// Package wire implements the tagged binary record format spoken between an
// instrumented application and the profiling server.
//
// # Framing
//
// Every record travels in its own frame:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Record Type │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// Frames are self-delimiting, so any number of them may be concatenated into
// a single transport write.
//
// # Payloads
//
// Integers (timestamps, counts, indices, frame numbers, counter readings) are
// unsigned varints. Byte strings are a varint length followed by the raw
// bytes; names are never NUL-terminated and may contain NUL bytes.
//
//	Hello     [version major][version minor][instance: len-prefixed][name: len-prefixed]
//	Mark      [ts: varint][label: len-prefixed]
//	Begin     [ts: varint][frame: varint][label: len-prefixed]
//	End       [ts: varint]
//	Library   [count: varint]{[name: len-prefixed][type: byte][data: len-prefixed]}
//	Counters  [count: varint]{[name: len-prefixed]}                (definitions)
//	Snapshot  [seq: varint][ts: varint][count: varint]{[reading: varint]}
//	Goodbye   [ts: varint]
//	Edit      [item: varint][data: len-prefixed]                   (server → client)
//
// Library item data keeps the in-memory layout host code expects: a Float
// item is three little-endian float32 values (current, min, max), an Int
// item three little-endian int32 values, a Bool item one byte, an Enum item
// text whose first line is the selected index followed by one option per
// line, and a String item arbitrary bytes.
package wire
