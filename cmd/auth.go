package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/server"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthSpotify runs the authorization code flow for the configured Spotify app and saves the token to the config file.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	handler := server.NewOAuthHandler(services.SpotifyOAuthConfig(creds), shared.GenerateID())
	return r.authorize(ctx, cmd, models.ServiceSpotify, handler)
}

// AuthTidal runs the PKCE authorization code flow for the configured Tidal app and saves the token to the config file.
func (r *Runner) AuthTidal(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Tidal
	if creds.ClientID == "" || creds.CountryCode == "" {
		return fmt.Errorf("%w: tidal client_id and country_code must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	handler := server.NewOAuthHandler(services.TidalOAuthConfig(creds), shared.GenerateID()).WithPKCE()
	return r.authorize(ctx, cmd, models.ServiceTidal, handler)
}

// authorize serves handler behind a local callback server, sends the user to the consent page and stores the token of service.
func (r *Runner) authorize(ctx context.Context, cmd *cli.Command, service string, handler *server.OAuthHandler) error {
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(handler)

	srv, err := server.Start(r.config.Server.Addr(), router, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			r.logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := handler.AuthCodeURL()
	if cmd.Bool("no-browser") || r.openBrowser(authURL) != nil {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opened the browser for %s authorization\n", service)
	}

	timeout := cmd.Duration("timeout")
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tokens := make(chan error, 1)
	go func() {
		tok, err := handler.Wait(waitCtx)
		if err == nil {
			r.config.Credentials.OAuth(service).Update(tok)
		}
		tokens <- err
	}()

	select {
	case err = <-tokens:
	case err = <-srv.Errors():
		if err == nil {
			err = <-tokens
		}
	}
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}

	r.writePlain("%s Authorization successful, token saved to %s\n", r.palette.Success("✓"), r.configPath)
	r.writePlain("%s\n", r.palette.Help("Next: plsync pull "+service))
	return nil
}
