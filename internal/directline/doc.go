// Package directline is a minimal Bot Framework Direct Line v3 client.
//
// The client starts one conversation on the first Send, posts user messages
// as message activities, and polls the conversation's activity set using the
// watermark returned by the service. Run drives the polling loop and hands
// every non-empty batch to a channel.
//
//	dl := directline.NewClient(cfg.DirectLine.BaseURL, cfg.DirectLine.Secret)
//	id, err := dl.Send(ctx, "hello", "user-1", "Alice")
package directline
