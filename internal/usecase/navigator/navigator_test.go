package navigator

import (
	"context"
	"testing"

	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/logger"
	"listing-agent/internal/testutil"
	"listing-agent/internal/usecase/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{ProbeAttempts: 3}
}

func newNavigator(driver *testutil.FakeDriver) (*Navigator, *pagination.Detector) {
	det := pagination.New(pagination.DefaultScoringTable(), logger.NewNopLogger())
	return New(driver, det, nil, logger.NewNopLogger(), testConfig()), det
}

func twoPages() *testutil.FakeDriver {
	return testutil.NewFakeDriver(
		testutil.ListingPage("https://example.com/?page=1", []string{"Acme Corp"}, true),
		testutil.ListingPage("https://example.com/?page=2", []string{"Globex"}, false),
	)
}

func TestAdvance_NextButton(t *testing.T) {
	driver := twoPages()
	nav, det := newNavigator(driver)

	strategy, err := nav.Advance(context.Background(), det.Classify(driver.Pages[0].Candidates), 1)

	require.NoError(t, err)
	assert.Equal(t, StrategyNextButton, strategy)
	assert.Equal(t, 1, driver.Current)
	assert.Equal(t, []string{"next"}, driver.Clicks)
}

func TestAdvance_RetriesFailedClickOnFreshCandidates(t *testing.T) {
	driver := twoPages()
	driver.ClickFailures["next"] = 1
	nav, det := newNavigator(driver)

	strategy, err := nav.Advance(context.Background(), det.Classify(driver.Pages[0].Candidates), 1)

	require.NoError(t, err)
	assert.Equal(t, StrategyNextButton, strategy)
	assert.Equal(t, []string{"next", "next"}, driver.Clicks)
	assert.Equal(t, 1, driver.Current)
}

func TestAdvance_FallsBackToPageLink(t *testing.T) {
	page1 := testutil.ListingPage("https://example.com/?page=1", []string{"Acme Corp"}, true)
	page1.Candidates = append(page1.Candidates,
		entity.ElementCandidate{ID: "p1", Index: 1, Text: "1", Href: "?page=1", ClassID: "current"},
		entity.ElementCandidate{ID: "p2", Index: 2, Text: "2", Href: "?page=2"},
	)
	driver := testutil.NewFakeDriver(page1, testutil.ListingPage("https://example.com/?page=2", []string{"Globex"}, false))
	driver.Links["p2"] = 1
	driver.ClickFailures["next"] = 2
	nav, det := newNavigator(driver)

	strategy, err := nav.Advance(context.Background(), det.Classify(page1.Candidates), 1)

	require.NoError(t, err)
	assert.Equal(t, StrategyPageLink, strategy)
	assert.Equal(t, []string{"next", "next", "p2"}, driver.Clicks)
	assert.Equal(t, 1, driver.Current)
}

func TestAdvance_PageNumbersUseCurrentPageMarker(t *testing.T) {
	page := testutil.ListingPage("https://example.com/?page=3", []string{"Acme Corp"}, false)
	page.Candidates = []entity.ElementCandidate{
		{ID: "p3", Index: 0, Text: "3", Href: "?page=3", ClassID: "active"},
		{ID: "p4", Index: 1, Text: "4", Href: "?page=4"},
	}
	driver := testutil.NewFakeDriver(page, testutil.ListingPage("https://example.com/?page=4", nil, false))
	nav, det := newNavigator(driver)

	strategy, err := nav.Advance(context.Background(), det.Classify(page.Candidates), 1)

	require.NoError(t, err)
	assert.Equal(t, StrategyPageLink, strategy)
	assert.Equal(t, []string{"p4"}, driver.Clicks)
}

func TestAdvance_InfiniteScrollProbe(t *testing.T) {
	driver := testutil.NewFakeDriver(testutil.ListingPage("https://example.com/feed", []string{"Acme Corp"}, false))
	driver.GrowOnScroll = 1200
	nav, det := newNavigator(driver)

	strategy, err := nav.Advance(context.Background(), det.Classify(nil), 1)

	require.NoError(t, err)
	assert.Equal(t, StrategyInfiniteScroll, strategy)
	assert.Equal(t, 1, driver.Scrolls)
}

func TestAdvance_NothingWorks(t *testing.T) {
	driver := testutil.NewFakeDriver(testutil.ListingPage("https://example.com/end", []string{"Acme Corp"}, false))
	nav, det := newNavigator(driver)

	_, err := nav.Advance(context.Background(), det.Classify(nil), 1)

	var navErr *entity.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 3, driver.Scrolls)
}

func TestAdvance_Cancelled(t *testing.T) {
	driver := twoPages()
	nav, det := newNavigator(driver)
	nav.cfg.SettleDelay = 1 << 40

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := nav.Advance(ctx, det.Classify(driver.Pages[0].Candidates), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
