/*
Package log provides structured logging for hazardfeed using zerolog.

A single package-level Logger is configured once at startup by Init and
shared by every component. Components derive child loggers that carry a
"component" field so output can be filtered per subsystem:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("zones")
	logger.Info().Int("zones", 3).Msg("zone snapshot replaced")

JSON output is intended for production and log shippers; console output
(JSONOutput false) is for local development:

	{"level":"info","component":"zones","zones":3,"time":"...","message":"zone snapshot replaced"}
	10:30AM INF zone snapshot replaced component=zones zones=3

Field conventions:
  - component: owning subsystem (api, ingest, events, zones, mirror)
  - post_id: report identifier, see WithPostID
  - subscriber_id: live stream subscriber, see WithSubscriberID
  - request_id, client: one API request, see WithRequest
  - error: attached with .Err(err)

The API middleware stores a request logger in the request context with
NewContext; handlers fetch it with FromContext, which returns the global
Logger when the context carries none:

	log.FromContext(r.Context()).Warn().Err(err).Msg("request failed")

Before Init runs, Logger writes JSON to stderr so that packages used as
libraries still produce output.
*/
package log
