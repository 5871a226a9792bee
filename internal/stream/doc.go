// Package stream maintains a resilient websocket subscription to a push-based
// market-data endpoint.
//
// A Session performs exactly one connect, subscribe and stream cycle and
// reports how it ended. A Supervisor runs sessions back to back, resetting its
// attempt counter whenever a session ends cleanly and giving up once
// MaxReconnectAttempts consecutive sessions have failed.
//
// Frames are interpreted by a Decoder, which also produces the subscription
// request sent on every new connection:
//
//	sup := stream.NewSupervisor[Quote](cfg, decoder, stream.WithLogger(logger))
//	err := sup.Run(ctx, func(q Quote) {
//		fmt.Println(q)
//	})
//
// Run blocks until the context is cancelled or the attempt ceiling is reached.
package stream
