// Package connect keeps the poll client's repository in sync with the
// settings store.
package connect

import (
	"sync"

	do "github.com/samber/do/v2"

	glhttp "github.com/canton7/gitlab-mr-viewer/internal/adapters/secondary/gitlab"
	glrepo "github.com/canton7/gitlab-mr-viewer/internal/adapters/secondary/repository/gitlab"
	"github.com/canton7/gitlab-mr-viewer/internal/config"
	"github.com/canton7/gitlab-mr-viewer/internal/core/app"
)

var Package = do.Package(
	do.Lazy[*Connector](NewConnector),
)

// Connector rebuilds the API client whenever the settings change and
// installs it on the poll client. Each rebuild starts from a fresh
// response cache; validators issued to the old session are discarded
// with it.
type Connector struct {
	client *app.Client

	mu        sync.Mutex
	stopSweep func()
}

// NewConnector wires the settings store to the poll client (for DI).
func NewConnector(i do.Injector) (*Connector, error) {
	store := do.MustInvoke[*config.Store](i)
	client := do.MustInvoke[*app.Client](i)

	connector := &Connector{client: client}
	store.Subscribe(connector.apply)

	return connector, nil
}

func (c *Connector) apply(settings config.Settings) {
	c.mu.Lock()
	if c.stopSweep != nil {
		c.stopSweep()
		c.stopSweep = nil
	}
	c.mu.Unlock()

	if !settings.Configured() {
		c.client.SetRepository(nil)

		return
	}

	cache := glhttp.NewCache()
	apiClient, err := glhttp.NewClient(settings.BaseURL, settings.AccessToken, cache)
	if err != nil {
		c.client.SetRepository(nil)

		return
	}

	c.mu.Lock()
	c.stopSweep = cache.SweepEvery(glhttp.CacheSweepPeriod)
	c.mu.Unlock()

	c.client.SetRepository(glrepo.NewRepository(apiClient))
}

// Shutdown stops the cache sweeper and the poll timer.
func (c *Connector) Shutdown() error {
	c.mu.Lock()
	if c.stopSweep != nil {
		c.stopSweep()
		c.stopSweep = nil
	}
	c.mu.Unlock()

	c.client.Stop()

	return nil
}
