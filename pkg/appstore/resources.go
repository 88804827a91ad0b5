// Package appstore provides typed fetchers over the App Store Connect
// transport for the resources the review scanner consumes: app
// metadata, store versions, screenshot sets, and in-app purchases.
package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/client"
	"github.com/ahmetsina/ios-app-review-plugin-sub000/pkg/pagination"
)

// App is the app metadata resource.
type App struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name          string `json:"name"`
		BundleID      string `json:"bundleId"`
		SKU           string `json:"sku"`
		PrimaryLocale string `json:"primaryLocale"`
	} `json:"attributes"`
}

// AppStoreVersion is one store version of an app.
type AppStoreVersion struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		VersionString string `json:"versionString"`
		Platform      string `json:"platform"`
		AppStoreState string `json:"appStoreState"`
		ReleaseType   string `json:"releaseType"`
	} `json:"attributes"`
}

// ScreenshotSet groups the screenshots for one display type.
type ScreenshotSet struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		ScreenshotDisplayType string `json:"screenshotDisplayType"`
	} `json:"attributes"`
}

// InAppPurchase is one in-app purchase product.
type InAppPurchase struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name              string `json:"name"`
		ProductID         string `json:"productId"`
		InAppPurchaseType string `json:"inAppPurchaseType"`
		State             string `json:"state"`
	} `json:"attributes"`
}

// Service fetches review-relevant resources. Single-object lookups go
// through the transport directly; list endpoints walk pagination to
// completion.
type Service struct {
	client *client.Client
	walker *pagination.Walker
}

// NewService creates a resource service over the given transport.
func NewService(c *client.Client) *Service {
	return &Service{
		client: c,
		walker: pagination.NewWalker(c),
	}
}

// App fetches the app metadata resource.
func (s *Service) App(ctx context.Context, appID string) (*App, error) {
	resp, err := s.client.Get(ctx, "/v1/apps/"+appID)
	if err != nil {
		return nil, err
	}

	var app App
	if err := json.Unmarshal(resp.Data, &app); err != nil {
		return nil, fmt.Errorf("decode app %s: %w", appID, err)
	}
	return &app, nil
}

// AppStoreVersions fetches all store versions of an app.
func (s *Service) AppStoreVersions(ctx context.Context, appID string, maxPages int) ([]AppStoreVersion, error) {
	path := fmt.Sprintf("/v1/apps/%s/appStoreVersions", appID)
	return collect[AppStoreVersion](ctx, s.walker, path, maxPages)
}

// ScreenshotSets fetches the screenshot sets of a version localization.
func (s *Service) ScreenshotSets(ctx context.Context, localizationID string, maxPages int) ([]ScreenshotSet, error) {
	path := fmt.Sprintf("/v1/appStoreVersionLocalizations/%s/appScreenshotSets", localizationID)
	return collect[ScreenshotSet](ctx, s.walker, path, maxPages)
}

// InAppPurchases fetches all in-app purchase products of an app.
func (s *Service) InAppPurchases(ctx context.Context, appID string, maxPages int) ([]InAppPurchase, error) {
	path := fmt.Sprintf("/v1/apps/%s/inAppPurchasesV2", appID)
	return collect[InAppPurchase](ctx, s.walker, path, maxPages)
}

// collect walks a list endpoint and decodes every item into T.
func collect[T any](ctx context.Context, walker *pagination.Walker, path string, maxPages int) ([]T, error) {
	params := url.Values{}
	params.Set("limit", "50")

	raw, err := walker.CollectAll(ctx, path, params, maxPages)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(raw))
	for i, item := range raw {
		var decoded T
		if err := json.Unmarshal(item, &decoded); err != nil {
			return nil, fmt.Errorf("decode item %d from %s: %w", i, path, err)
		}
		items = append(items, decoded)
	}
	return items, nil
}
