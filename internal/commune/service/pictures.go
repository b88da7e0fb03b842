package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/provider"
	"github.com/communehq/commune/internal/commune/store"
)

// PictureService periodically checks that stored profile picture urls
// still resolve, re-fetching from the owning service when they have gone
// stale. External avatar urls rot when users change their picture.
type PictureService struct {
	Store     store.Store
	Providers *provider.Registry
	Logger    *slog.Logger
	Interval  time.Duration

	client *resty.Client

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPictureService creates the refresher. If interval is 0 or negative,
// defaults to 24 hours.
func NewPictureService(s store.Store, providers *provider.Registry, logger *slog.Logger, interval time.Duration) *PictureService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &PictureService{
		Store:     s,
		Providers: providers,
		Logger:    logger,
		Interval:  interval,
		client:    resty.New().SetTimeout(10 * time.Second),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking, call Stop() to
// gracefully shut the worker down.
func (s *PictureService) Start() {
	go s.run()
	s.Logger.Info("picture refresher started", "interval", s.Interval)
}

// Stop blocks until any in-progress refresh pass has finished.
func (s *PictureService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("picture refresher stopped")
}

func (s *PictureService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RefreshAll(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RefreshAll walks every account with a recorded picture per service and
// refreshes the ones whose url no longer resolves. Each account is
// independently fallible, an error skips that account only. Fan-out is
// bounded to keep pressure on the external services low.
func (s *PictureService) RefreshAll(ctx context.Context) {
	for _, name := range s.Providers.Names() {
		users, err := s.Store.Users().ListBySocialPicture(ctx, name)
		if err != nil {
			s.Logger.Error("listing accounts for picture refresh failed",
				"service", name, "error", err)
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, u := range users {
			g.Go(func() error {
				if err := s.refreshUser(gctx, name, u); err != nil {
					s.Logger.Warn("picture refresh skipped",
						"service", name, "user_id", u.ID, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

// refreshUser checks one account's picture for the given service and
// re-fetches it when the stored url has gone stale.
func (s *PictureService) refreshUser(ctx context.Context, serviceName string, user domain.User) error {
	current := user.Profile.SocialPicture[serviceName]
	if current == "" {
		return nil
	}

	resp, err := s.client.R().SetContext(ctx).Head(current)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusNotFound {
		return nil
	}

	adapter, err := s.Providers.Lookup(serviceName)
	if err != nil {
		return err
	}
	cred, ok := user.Services[serviceName]
	if !ok || cred.AccessToken == "" {
		return ErrUnknownService
	}
	ext, err := adapter.Fetch(ctx, &oauth2.Token{AccessToken: cred.AccessToken})
	if err != nil {
		return err
	}
	if ext.Picture == "" || ext.Picture == current {
		return nil
	}

	// Same takeover rule as profile extension: only replace the main
	// picture when it was this service's stale one.
	if user.Profile.Picture == current || user.Profile.Picture == "" {
		user.Profile.Picture = ext.Picture
	}
	user.Profile.SocialPicture[serviceName] = ext.Picture
	user.UpdatedAt = time.Now().UTC()
	return s.Store.Users().UpdateUser(ctx, user)
}
