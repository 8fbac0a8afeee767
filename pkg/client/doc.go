/*
Package client is the Go client for the hazardfeed API.

Client wraps the REST routes and opens event streams:

	c := client.NewClient("http://localhost:5000")
	posts, err := c.ListPosts(ctx)

	stream, err := c.Subscribe(ctx)
	for ev := range stream.Events() {
		...
	}

FeedView builds a live, local copy of the feed on top of those two. Every
sync subscribes before reading the post and zone snapshots, merges new
posts by id and replaces zones wholesale on zone-update. A dropped stream
is retried with exponential backoff and the snapshots are read again, since
the stream has no replay.

Session tracks sign-in state and pushes changes to watchers instead of
having them poll. It also signs out when the token expires.
*/
package client
