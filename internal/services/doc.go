// Package services connects the sync engine to music server backends.
//
// # Provider boundary
//
// The engine only knows [Provider]. [SnapshotProvider] implements it by reading playlists from a
// snapshot through [repositories.SnapshotReader] and delegating searches and writes to a [Client].
//
// # Clients
//
//   - [SubsonicClient] : Subsonic REST API, token auth (md5 of password and salt). Navidrome uses the same client
//     plus its native API for reordering.
//   - [PlexClient] : Plex Media Server API with an X-Plex-Token; the server machine identifier is memoized per client.
//   - [JellyfinClient] : Jellyfin API with an API key on behalf of one user.
//   - [SpotifyClient] : Spotify Web API through zmb3/spotify over an oauth2 token source.
//   - [TidalClient] : Tidal open API (JSON:API) with a PKCE-issued token; playlists only, no ratings or reordering.
//
// All HTTP clients share one requester with a client-side rate limiter and a bounded exponential
// backoff: transport errors, 429 and 5xx are retried, other 4xx fail at once.
//
// # Registry
//
// [Registry] maps service names to [Factory] functions. [DefaultRegistry] registers every client above;
// unknown names fail with [shared.ErrUnknownService].
//
// # Ratings
//
// Ratings cross the boundary on a 0..10 scale. Plex uses it natively, Subsonic stores 1..5 stars,
// Jellyfin and Spotify only know liked or not, and Tidal ignores them.
package services
