// Package realtime is a client for a command-framed realtime protocol carried
// over a single WebSocket connection.
//
// One connection serves three interaction modes:
//
//   - Request: one-shot request/response correlated by sequence number
//   - SendEvent / SendEventAck / WatchEvent: events, optionally acknowledged
//   - CreateFeed: topic subscriptions that are renewed and replayed across reconnects
//
// Messages sent before the connection is authenticated are queued and
// flushed in order once it is. Dropped connections are retried on a fixed
// schedule.
//
// Basic usage:
//
//	client, err := realtime.NewClient(realtime.Config{
//	    URL: "wss://rt.example.com/socket",
//	}, realtime.WithLogger(slog.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ok, err := client.Connect(ctx, map[string]string{"token": token})
//	if err != nil || !ok {
//	    log.Fatal("not authorized")
//	}
//
//	feed := client.CreateFeed("/prices", "market")
//	for data := range feed.C() {
//	    fmt.Println(string(data))
//	}
package realtime
