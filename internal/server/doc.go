// Package server runs the short-lived HTTP listener behind `plsync auth spotify`.
//
// # OAuth Callback
//
// [OAuthHandler] serves the path of the configured redirect URI. It checks the state parameter,
// exchanges the authorization code through [golang.org/x/oauth2] and delivers one [OAuthResult].
// Later callbacks are rejected.
//
// # Routing
//
// [BasicRouter] is a method-filtering wrapper around [http.ServeMux]. [Middleware] registered with
// Use wraps every handler, first added outermost; [RequestLogger] is the only one shipped.
//
// [Start] binds the listener before returning so a busy port fails fast, then serves in the
// background until Shutdown.
package server
