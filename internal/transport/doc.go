// Package transport owns the physical gateway websocket.
//
// A Conn dials the gateway, assembles each logical message into one byte
// slice regardless of how many frames carried it, and serializes every write
// through a queue drained by one writer goroutine per socket. The queue is
// shared across sockets: Connect discards whatever is still waiting, while
// ConnectResuming keeps it so frames produced during a resume land on the new
// socket.
//
// Socket failures surface as *Error, which carries the close code when the
// peer sent one and classifies codes after which the session cannot resume.
package transport
