// Package client connects to the chat backend.
//
// Client wraps the REST API (sessions, message history, file downloads)
// behind a circuit breaker and bearer token auth. Socket manages the one
// WebSocket shared by every session of a user.
//
// # Basic Usage
//
//	c := client.New("http://localhost:8000", token.Static(tok))
//	page, err := c.GetMessages(ctx, 42, 1, 10)
//
// # WebSocket
//
//	sock := client.NewSocket(client.SocketConfig{URL: "ws://localhost:8000"}, token.Static(tok))
//	err := sock.Connect(ctx, client.SocketCallbacks{
//	    OnOpen:  func() { ... },
//	    OnFrame: func(f chat.Frame) { ... },
//	    OnClose: func(err error) { ... },
//	})
//	defer sock.Close()
//
//	sock.Send(ctx, chat.Action{Kind: chat.ActionJoin, SessionID: 42})
//
// # Thread Safety
//
// Client and Socket are safe for concurrent use. SocketCallbacks are invoked
// from the socket's read goroutine, one frame at a time.
package client
