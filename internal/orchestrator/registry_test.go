package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(factory Factory) *Registry {
	return NewRegistry(factory, &seqIDs{}, newFakeClock(testEpoch), nil, zap.NewNop())
}

func registryConfig(orgID, siteID string) Config {
	cfg := testConfig()
	cfg.OrgID = orgID
	cfg.SiteID = siteID
	cfg.TickInterval = time.Hour // instances stay idle; registry behavior is the subject
	return cfg
}

func TestRegistryStartAndGet(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(func(Config) (Collaborators, error) {
		return newTestFixtures().collaborators(), nil
	})

	ctx := context.Background()
	inst, err := r.Start(ctx, registryConfig("org-1", "site-1"))
	require.NoError(t, err)
	require.NotNil(t, inst)

	got, ok := r.Get("org-1", "site-1")
	require.True(t, ok)
	require.Same(t, inst, got)

	_, ok = r.Get("org-1", "other-site")
	require.False(t, ok)

	require.NoError(t, r.Stop(ctx, "org-1", "site-1"))
}

func TestRegistryRefusesDuplicateKey(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(func(Config) (Collaborators, error) {
		return newTestFixtures().collaborators(), nil
	})

	ctx := context.Background()
	_, err := r.Start(ctx, registryConfig("org-1", "site-1"))
	require.NoError(t, err)

	_, err = r.Start(ctx, registryConfig("org-1", "site-1"))
	require.ErrorIs(t, err, ErrAlreadyRunning)

	// Distinct sites under the same org are independent instances.
	_, err = r.Start(ctx, registryConfig("org-1", "site-2"))
	require.NoError(t, err)

	r.StopAll(ctx)
}

func TestRegistryFactoryErrorPropagates(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(func(Config) (Collaborators, error) {
		return Collaborators{}, errors.New("no credentials for site")
	})

	_, err := r.Start(context.Background(), registryConfig("org-1", "site-1"))
	require.ErrorContains(t, err, "no credentials for site")

	_, ok := r.Get("org-1", "site-1")
	require.False(t, ok)
}

func TestRegistryStopRemovesInstance(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(func(Config) (Collaborators, error) {
		return newTestFixtures().collaborators(), nil
	})

	ctx := context.Background()
	_, err := r.Start(ctx, registryConfig("org-1", "site-1"))
	require.NoError(t, err)

	require.NoError(t, r.Stop(ctx, "org-1", "site-1"))
	_, ok := r.Get("org-1", "site-1")
	require.False(t, ok)

	require.ErrorIs(t, r.Stop(ctx, "org-1", "site-1"), ErrNotRunning)
}

func TestRegistryStopAll(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(func(Config) (Collaborators, error) {
		return newTestFixtures().collaborators(), nil
	})

	ctx := context.Background()
	for _, site := range []string{"site-1", "site-2", "site-3"} {
		_, err := r.Start(ctx, registryConfig("org-1", site))
		require.NoError(t, err)
	}

	r.StopAll(ctx)
	for _, site := range []string{"site-1", "site-2", "site-3"} {
		_, ok := r.Get("org-1", site)
		require.False(t, ok, "instance %s survived StopAll", site)
	}
}
