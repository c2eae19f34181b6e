package protocol

// This package implements parsing and serialising of the NATS client
// protocol: a text protocol whose control lines are ASCII but whose PUB and
// MSG frames carry a binary payload.
//
// This implementation aims to be
//
// - resumable, bytes may arrive split at any position
// - zero copy, decoded subjects and payloads are views of the receive buffer
// - strict, anything malformed is reported rather than skipped
//
// - `Message` - One frame. The concrete types are *Ok, *Err, *Ping, *Pong,
//               *Info, *Connect, *Pub, *Msg, *Sub and *Unsub.
// - `Buffer`  - The receive buffer a transport appends bytes to.
// - `Decoder` - Consumes the front of a Buffer one message at a time.
//
// === General Syntax
//
// - lines are `\r\n` delimited
// - op names are case insensitive, everything else is opaque and case sensitive
// - fields are separated by one or more spaces or tabs
//
//   ```
//   +OK\r\n
//   -ERR '<error-text>'\r\n
//   PING\r\n
//   PONG\r\n
//   INFO <json>\r\n
//   CONNECT <json>\r\n
//   PUB <subject> [reply-to] <size>\r\n<size bytes>\r\n
//   MSG <subject> <sid> [reply-to] <size>\r\n<size bytes>\r\n
//   SUB <subject> [queue-group] <sid>\r\n
//   UNSUB <sid> [max-messages]\r\n
//   ```
//
// Optional fields are told apart purely by how many fields the line holds,
// the last field of PUB, MSG and SUB is always the required numeric one.
//
// === Decoding
//
// A transport appends whatever it read to a Buffer and calls Decode until it
// returns a nil message:
//
//   ```
//   for {
//       m, err := dec.Decode(buf)
//       if err != nil {
//           // malformed stream, close the connection
//       }
//       if m == nil {
//           break // need more bytes
//       }
//       handle(m)
//   }
//   ```
//
// The decoder has two states. In StateControlLine it waits for a CRLF, parses
// the line and returns bodyless messages straight away. A PUB or MSG header is
// stashed and the decoder moves to StateBody, where it waits for exactly the
// declared number of bytes plus the closing CRLF. A body that is not followed
// by CRLF is an error.
//
// === Error responses
//
// The text of -ERR is matched against a fixed catalog of server errors, see
// ErrorKind. Text outside the catalog is kept verbatim as ErrKindUnknown so no
// server error is ever lost.
//
// === INFO and CONNECT
//
// Both carry a JSON object. Optional fields are pointers (or omitempty
// slices) so that absent, null and empty values are not confused.
