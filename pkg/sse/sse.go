// Package sse provides the two halves of the minimal "data: " line protocol
// spoken between the canvas server and its clients: a Writer that frames
// chunks on the server and an incremental line Decoder for the client.
//
// Only the data field is meaningful. Event types, IDs and retry hints are
// never produced and are ignored when consumed.
//
// Event stream format reference:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DataPrefix marks a payload-bearing line.
const DataPrefix = "data: "

// ContentType is the media type of an event stream body.
const ContentType = "text/event-stream"
