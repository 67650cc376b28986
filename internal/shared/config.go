package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/plsync/internal/models"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig      `toml:"credentials"`
	Database    DatabaseConfig         `toml:"database"`
	Server      ServerConfig           `toml:"server"`
	Client      ClientConfig           `toml:"client"`
	Sync        SyncConfig             `toml:"sync"`
	Retention   models.RetentionPolicy `toml:"retention"`
	Log         LogConfig              `toml:"log"`
}

// LogConfig sets the level (debug, info, warn, error) and format (text, json, logfmt) of the logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Subsonic  SubsonicConfig `toml:"subsonic"`
	Navidrome SubsonicConfig `toml:"navidrome"`
	Plex      PlexConfig     `toml:"plex"`
	Jellyfin  JellyfinConfig `toml:"jellyfin"`
	Spotify   SpotifyConfig  `toml:"spotify"`
	Tidal     TidalConfig    `toml:"tidal"`
}

// SubsonicConfig holds the login of a Subsonic compatible server, Navidrome included.
type SubsonicConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// PlexConfig holds a Plex Media Server url and its X-Plex-Token.
type PlexConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// JellyfinConfig holds a Jellyfin server url, an API key and the user whose playlists are synced.
type JellyfinConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
	UserID string `toml:"user_id"`
}

// SpotifyConfig contains Spotify API credentials and the last token obtained by `auth spotify`.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	OAuthToken
}

// TidalConfig contains the Tidal developer app, the catalog country and the last token obtained by `auth tidal`.
//
// Tidal apps are public clients, so ClientSecret may stay empty.
type TidalConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret,omitempty"`
	RedirectURI  string `toml:"redirect_uri"`
	CountryCode  string `toml:"country_code"`
	OAuthToken
}

// OAuthToken is the persisted form of an [oauth2.Token].
type OAuthToken struct {
	AccessToken  string    `toml:"access_token,omitempty"`
	RefreshToken string    `toml:"refresh_token,omitempty"`
	TokenType    string    `toml:"token_type,omitempty"`
	Expiry       time.Time `toml:"expiry,omitempty"`
}

// Token returns the stored token, or nil when no authorization has happened yet.
func (c OAuthToken) Token() *oauth2.Token {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// Update stores tok, keeping the previous refresh token when the provider did not rotate it.
func (c *OAuthToken) Update(tok *oauth2.Token) {
	if tok == nil {
		return
	}
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.TokenType = tok.TokenType
	c.Expiry = tok.Expiry
}

// OAuth returns the stored token of an OAuth backend, or nil for services that log in another way.
func (c *CredentialsConfig) OAuth(service string) *OAuthToken {
	switch service {
	case models.ServiceSpotify:
		return &c.Spotify.OAuthToken
	case models.ServiceTidal:
		return &c.Tidal.OAuthToken
	}
	return nil
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the OAuth callback listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientConfig tunes the HTTP clients talking to backends.
type ClientConfig struct {
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
	MaxRetries        uint          `toml:"max_retries"`
}

// SyncConfig holds the defaults of `plsync sync`.
type SyncConfig struct {
	MatchPercentage          int  `toml:"match_percentage"`
	PlaylistThreads          int  `toml:"playlist_threads"`
	TrackThreads             int  `toml:"track_threads"`
	ForceAddTrack            bool `toml:"force_add_track"`
	DeepSearchThroughArtist  bool `toml:"deep_search_through_artist"`
	SecondSearchWithoutAlbum bool `toml:"second_search_without_album"`
	SyncTrackOrder           bool `toml:"sync_track_order"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Retention.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// SaveConfig writes config to path as TOML, replacing the file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
