// Package places implements the enrichment stage client: it resolves a POI
// against the places API and returns the maps-side data snapshot for the
// comparator. A POI that cannot be resolved is a completed lookup with a
// partial result, not a failure.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	domainjob "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/job"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
)

const (
	searchFieldMask = "places.displayName,places.formattedAddress," +
		"places.internationalPhoneNumber,places.websiteUri,places.location," +
		"places.regularOpeningHours,places.businessStatus"
	lookupAttempts = 3
)

// CostRecorder receives one ledger entry per API call, successful or not.
type CostRecorder interface {
	Record(ctx context.Context, entry *model.CostEntry) (*model.CostEntry, error)
}

// Place is the maps-side snapshot of a resolved POI.
type Place struct {
	Name           string   `json:"name,omitempty"`
	Address        string   `json:"address,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Website        string   `json:"website,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	OpeningHours   []string `json:"opening_hours,omitempty"`
	BusinessStatus string   `json:"business_status,omitempty"`
}

// Resolution is the outcome of one lookup. FailureKind carries the reason
// when no place could be resolved; a set Place means success.
type Resolution struct {
	Place       *Place
	FailureKind obserrors.FailureKind
	Note        string
}

// Resolved reports whether the lookup produced a place.
func (r Resolution) Resolved() bool {
	return r.Place != nil
}

// Options groups dependencies for the Client.
type Options struct {
	Config     config.PlacesConfig      // API key, endpoint, pricing
	HTTPClient *http.Client             // Optional: defaults to a client with the configured timeout
	Costs      CostRecorder             // Optional: ledger sink for call pricing
	Backoff    *domainjob.BackoffPolicy // Optional: delay between retry attempts
	Logger     *slog.Logger             // Optional: structured logger
}

// Client talks to the places API. A client without an API key is disabled
// and resolves nothing; the enrichment stage then records missing maps data.
type Client struct {
	cfg     config.PlacesConfig
	client  *http.Client
	costs   CostRecorder
	backoff *domainjob.BackoffPolicy
	logger  *slog.Logger
}

// NewClient constructs a places Client.
func NewClient(opts Options) (*Client, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("places base url is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	backoff := opts.Backoff
	if backoff == nil {
		var err error
		backoff, err = domainjob.NewBackoffPolicy(time.Second)
		if err != nil {
			return nil, fmt.Errorf("create lookup backoff policy: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "places_client")
	}

	return &Client{
		cfg:     cfg,
		client:  client,
		costs:   opts.Costs,
		backoff: backoff,
		logger:  logger,
	}, nil
}

// Enabled reports whether the client holds an API key.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// Resolve looks a POI up by name and address, falling back to a broader
// name-plus-city query when the first search misses. Transient API trouble
// surfaces as an error after the retry budget; everything else resolves to a
// Resolution.
func (c *Client) Resolve(ctx context.Context, poi *model.POI) (Resolution, error) {
	if poi == nil || poi.Name == "" {
		return Resolution{}, errors.New("poi with name is required")
	}
	if !c.Enabled() {
		return Resolution{
			FailureKind: obserrors.FailurePermanentInput,
			Note:        "places lookup disabled: no api key configured",
		}, nil
	}

	queries := []string{poi.Name + ", " + poi.Address()}
	if poi.City != "" {
		queries = append(queries, poi.Name+", "+poi.City)
	}

	for _, query := range queries {
		place, err := c.searchText(ctx, poi.ID, query)
		if err != nil {
			return Resolution{}, err
		}
		if place != nil {
			return Resolution{Place: place}, nil
		}
	}

	if c.logger != nil {
		c.logger.InfoContext(ctx, "poi not resolvable against places api",
			"poi_id", poi.ID,
			"name", poi.Name,
		)
	}
	return Resolution{
		FailureKind: obserrors.FailurePermanentInput,
		Note:        "no place matched name and address",
	}, nil
}

// searchText runs one text search with call-level retries. It returns a nil
// place without error when the query simply matched nothing.
func (c *Client) searchText(ctx context.Context, poiID, query string) (*Place, error) {
	var lastErr error
	for attempt := 0; attempt < lookupAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.backoff.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		place, err := c.doSearch(ctx, poiID, query)
		if err == nil {
			return place, nil
		}
		if obserrors.KindOf(err) != obserrors.FailureTransient {
			return nil, err
		}
		lastErr = err
	}
	return nil, obserrors.Transient(fmt.Errorf("places search %q: %w", query, lastErr))
}

func (c *Client) doSearch(ctx context.Context, poiID, query string) (*Place, error) {
	body, err := json.Marshal(map[string]string{"textQuery": query})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.cfg.BaseURL+"/places:searchText",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Goog-FieldMask", searchFieldMask)

	resp, err := c.client.Do(req)
	c.recordCost(ctx, poiID)
	if err != nil {
		return nil, obserrors.Transient(fmt.Errorf("places request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		if obserrors.KindForHTTPStatus(resp.StatusCode) == obserrors.FailureTransient {
			return nil, obserrors.Transient(
				fmt.Errorf("places api status %d", resp.StatusCode),
			)
		}
		// A 4xx on the query itself means this input will never resolve.
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, obserrors.Transient(fmt.Errorf("read places response: %w", err))
	}

	var decoded struct {
		Places []struct {
			DisplayName struct {
				Text string `json:"text"`
			} `json:"displayName"`
			FormattedAddress         string `json:"formattedAddress"`
			InternationalPhoneNumber string `json:"internationalPhoneNumber"`
			WebsiteURI               string `json:"websiteUri"`
			Location                 struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
			RegularOpeningHours struct {
				WeekdayDescriptions []string `json:"weekdayDescriptions"`
			} `json:"regularOpeningHours"`
			BusinessStatus string `json:"businessStatus"`
		} `json:"places"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, obserrors.Transient(fmt.Errorf("decode places response: %w", err))
	}
	if len(decoded.Places) == 0 {
		return nil, nil
	}

	first := decoded.Places[0]
	lat, lng := first.Location.Latitude, first.Location.Longitude
	return &Place{
		Name:           first.DisplayName.Text,
		Address:        first.FormattedAddress,
		Phone:          first.InternationalPhoneNumber,
		Website:        first.WebsiteURI,
		Latitude:       &lat,
		Longitude:      &lng,
		OpeningHours:   first.RegularOpeningHours.WeekdayDescriptions,
		BusinessStatus: first.BusinessStatus,
	}, nil
}

// recordCost appends one ledger entry for an API call, win or lose.
func (c *Client) recordCost(ctx context.Context, poiID string) {
	if c.costs == nil {
		return
	}
	entry := &model.CostEntry{
		Service:   model.ServiceGeocode,
		Operation: "places.searchText",
		Units:     1,
		UnitCost:  c.cfg.LookupCostEUR,
	}
	if poiID != "" {
		entry.POIID = &poiID
	}
	if _, err := c.costs.Record(ctx, entry); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "failed to record places cost entry", "error", err)
	}
}
