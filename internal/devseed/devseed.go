// Package devseed populates a development database with a small set of
// points of interest and audit schedules so the pipeline has something to
// chew on locally. Seeding is idempotent: records that already exist by
// name are left untouched.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/data"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// Services bundles the repositories needed for development seeding.
type Services struct {
	DB        *sql.DB
	pois      *data.POIRepo
	schedules *data.ScheduleRepo
}

// NewServices constructs the repositories for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:        db,
		pois:      data.NewPOIRepo(db),
		schedules: data.NewScheduleRepo(db),
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	failures += seedPOIs(ctx, svcs.pois, logger)
	failures += seedSchedules(ctx, svcs.schedules, logger)
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

type poiSeed struct {
	name         string
	street       string
	postalCode   string
	city         string
	region       string
	category     string
	websiteURL   string
	contactEmail string
	master       map[string]any
}

func defaultPOISeeds() []poiSeed {
	return []poiSeed{
		{
			name:         "Bergbahn Talstation",
			street:       "Seilbahnweg 1",
			postalCode:   "87561",
			city:         "Oberstdorf",
			region:       "Allgäu",
			category:     "attraction",
			websiteURL:   "https://bergbahn.example.com",
			contactEmail: "info@bergbahn.example.com",
			master: map[string]any{
				"phone":         "+49 8322 123456",
				"opening_hours": "Mo-So 08:30-16:45",
			},
		},
		{
			name:         "Gasthof Alpenblick",
			street:       "Dorfstraße 12",
			postalCode:   "87534",
			city:         "Oberstaufen",
			region:       "Allgäu",
			category:     "restaurant",
			websiteURL:   "https://alpenblick.example.com",
			contactEmail: "kontakt@alpenblick.example.com",
			master: map[string]any{
				"phone":         "+49 8386 654321",
				"opening_hours": "Di-So 11:00-22:00",
			},
		},
		{
			name:       "Heimatmuseum am Markt",
			street:     "Marktplatz 3",
			postalCode: "88131",
			city:       "Lindau",
			region:     "Bodensee",
			category:   "museum",
			websiteURL: "https://heimatmuseum.example.com",
			master: map[string]any{
				"phone":         "+49 8382 998877",
				"opening_hours": "Mi-So 10:00-17:00",
			},
		},
		{
			name:       "Therme Seeufer",
			street:     "Uferpromenade 8",
			postalCode: "88045",
			city:       "Friedrichshafen",
			region:     "Bodensee",
			category:   "wellness",
			master: map[string]any{
				"phone": "+49 7541 112233",
			},
		},
	}
}

func seedPOIs(ctx context.Context, repo *data.POIRepo, logger *slog.Logger) int {
	existing, err := repo.ListByFilter(ctx, model.POIFilter{Limit: 1000})
	if err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "failed to list pois", "error", err)
		}
		return 1
	}
	byName := make(map[string]bool, len(existing))
	for _, p := range existing {
		byName[p.Name] = true
	}

	failures := 0
	for _, seed := range defaultPOISeeds() {
		if byName[seed.name] {
			if logger != nil {
				logger.InfoContext(ctx, "poi already exists", "name", seed.name)
			}
			continue
		}

		master, marshalErr := json.Marshal(seed.master)
		if marshalErr != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to marshal master data", "name", seed.name, "error", marshalErr)
			}
			failures++
			continue
		}

		poi := &model.POI{
			Name:       seed.name,
			Street:     seed.street,
			PostalCode: seed.postalCode,
			City:       seed.city,
			Region:     seed.region,
			Category:   seed.category,
			MasterData: master,
		}
		if seed.websiteURL != "" {
			url := seed.websiteURL
			poi.WebsiteURL = &url
		}
		if seed.contactEmail != "" {
			email := seed.contactEmail
			poi.ContactEmail = &email
		}

		if _, createErr := repo.Create(ctx, poi); createErr != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to create poi", "name", seed.name, "error", createErr)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "created poi", "name", seed.name)
		}
	}
	return failures
}

func defaultScheduleSeeds() []*model.ScheduleConfig {
	lowScore := 70.0
	return []*model.ScheduleConfig{
		{
			Name:     "nightly-full-audit",
			CronExpr: "0 2 * * *",
			Active:   true,
			Filter:   model.POIFilter{Limit: 100},
		},
		{
			Name:     "weekly-low-score-recheck",
			CronExpr: "0 4 * * 1",
			Active:   true,
			Filter:   model.POIFilter{ScoreCeiling: &lowScore, Limit: 50},
		},
	}
}

func seedSchedules(ctx context.Context, repo *data.ScheduleRepo, logger *slog.Logger) int {
	existing, err := repo.ListActive(ctx)
	if err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "failed to list schedules", "error", err)
		}
		return 1
	}
	byName := make(map[string]bool, len(existing))
	for _, s := range existing {
		byName[s.Name] = true
	}

	failures := 0
	for _, seed := range defaultScheduleSeeds() {
		if byName[seed.Name] {
			if logger != nil {
				logger.InfoContext(ctx, "schedule already exists", "name", seed.Name)
			}
			continue
		}
		if _, createErr := repo.Create(ctx, seed); createErr != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to create schedule", "name", seed.Name, "error", createErr)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "created schedule", "name", seed.Name)
		}
	}
	return failures
}
