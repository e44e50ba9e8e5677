// Package app runs the bridge as an Fx application.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/server"
)

// Application owns the Fx app and its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	return &Application{
		app: fx.New(options...),
	}
}

// Err reports an error from building the dependency graph.
func (a *Application) Err() error {
	return a.app.Err()
}

// Start runs every OnStart hook.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// registerLifecycleHooks starts the HTTP ingress last and stops it first, so
// no request reaches the registry after it has shut down.
func registerLifecycleHooks(lc fx.Lifecycle, srv *server.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application")

			if err := srv.Start(ctx); err != nil {
				logger.Error("Failed to start HTTP server", zap.Error(err))
				return err
			}

			logger.Info("Application started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application")

			if err := srv.Stop(ctx); err != nil {
				logger.Error("Failed to stop HTTP server", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped, ending active calls")
			return nil
		},
	})
}
