/*
scenarios_test.go - Demo scenario loader tests

Verifies that scenario loading resets the database, seeds templates,
materializes instances, and tracks the current scenario.
*/
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/recurring-engine/logging"
	"github.com/ledgerkit/recurring-engine/recurring"
	"github.com/ledgerkit/recurring-engine/store/sqlite"
)

func newScenarioServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, recurring.SystemClock{}, logging.Nop())
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestListScenarios(t *testing.T) {
	srv, _ := newScenarioServer(t)

	resp, err := http.Get(srv.URL + "/api/scenarios")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[[]ScenarioDTO](t, resp)
	require.Len(t, out, 3)
	assert.Equal(t, "personal-budget", out[0].ID)
}

func TestLoadScenario_PersonalBudget(t *testing.T) {
	// GIVEN: An empty sqlite-backed server
	// WHEN: Loading the personal-budget scenario
	// THEN: Three templates exist with materialized instances, and the
	//       current-scenario endpoint reflects the load

	srv, store := newScenarioServer(t)
	ctx := context.Background()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/load", LoadScenarioRequest{ID: "personal-budget"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	templates, err := store.ListTemplatesByOwner(ctx, "owner-alice")
	require.NoError(t, err)
	require.Len(t, templates, 3)

	for _, tpl := range templates {
		instances, err := store.ListInstancesByTemplate(ctx, tpl.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, instances, "%s must be materialized", tpl.Description)
	}

	currentResp, err := http.Get(srv.URL + "/api/scenarios/current")
	require.NoError(t, err)
	current := decodeBody[ScenarioDTO](t, currentResp)
	assert.Equal(t, "personal-budget", current.ID)
}

func TestLoadScenario_ResetsPreviousData(t *testing.T) {
	srv, store := newScenarioServer(t)
	ctx := context.Background()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/load", LoadScenarioRequest{ID: "personal-budget"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/load", LoadScenarioRequest{ID: "freelancer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	gone, err := store.ListTemplatesByOwner(ctx, "owner-alice")
	require.NoError(t, err)
	assert.Empty(t, gone, "a scenario load must wipe the previous one")

	bob, err := store.ListTemplatesByOwner(ctx, "owner-bob")
	require.NoError(t, err)
	assert.Len(t, bob, 3)
}

func TestLoadScenario_FreelancerRetainerEndDate(t *testing.T) {
	srv, store := newScenarioServer(t)
	ctx := context.Background()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/load", LoadScenarioRequest{ID: "freelancer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	templates, err := store.ListTemplatesByOwner(ctx, "owner-bob")
	require.NoError(t, err)

	var retainer *recurring.Template
	for i := range templates {
		if templates[i].Description == "Client retainer" {
			retainer = &templates[i]
		}
	}
	require.NotNil(t, retainer)
	require.NotNil(t, retainer.EndDate, "the retainer must carry its end date")
	assert.True(t, retainer.EndDate.After(time.Now()))

	// No retainer instance may fall past the end date.
	instances, err := store.ListInstancesByTemplate(ctx, retainer.ID)
	require.NoError(t, err)
	for _, inst := range instances {
		assert.False(t, inst.Date.After(*retainer.EndDate))
	}
}

func TestLoadScenario_Unknown_400(t *testing.T) {
	srv, _ := newScenarioServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/load", LoadScenarioRequest{ID: "does-not-exist"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCurrentScenario_NoneLoaded(t *testing.T) {
	srv, _ := newScenarioServer(t)

	resp, err := http.Get(srv.URL + "/api/scenarios/current")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
