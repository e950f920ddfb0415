// Package ws serves the chat protocol over WebSocket.
//
// Every connection is bound to one session. Frames produced by a chat cycle
// are broadcast to all connections of that session in this order:
// message_received, typing, typing_stop, then one message frame per response.
// Cycles on the same session are serialized by the session store's cycle
// lock, so the frame sequences of two cycles never interleave.
//
// A client whose send fails (closed socket, full send buffer) is unregistered
// and closed; the broadcast still reaches every other client.
package ws
