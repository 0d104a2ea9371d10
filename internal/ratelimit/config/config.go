package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hearth/internal/ratelimit/models"
)

// Limit defines rate limit parameters for an endpoint class.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Config holds the per-endpoint-class rate limit table.
type Config struct {
	classes map[models.EndpointClass]Limit
	// order fixes substring resolution so it never depends on map iteration
	order []models.EndpointClass
}

// knownClasses is the resolution order for substring matching. More specific
// household classes come before the generic api class.
var knownClasses = []models.EndpointClass{
	models.ClassAuth,
	models.ClassShopping,
	models.ClassChores,
	models.ClassBills,
	models.ClassMealPlanner,
	models.ClassAnalytics,
	models.ClassAPI,
}

// DefaultConfig returns the shipped quota table. The auth class is tighter
// than the general api class; expensive endpoints get their own budgets.
func DefaultConfig() *Config {
	cfg := &Config{
		classes: map[models.EndpointClass]Limit{
			models.ClassAuth:        {MaxRequests: 10, Window: 15 * time.Minute},
			models.ClassAPI:         {MaxRequests: 100, Window: time.Hour},
			models.ClassShopping:    {MaxRequests: 60, Window: time.Hour},
			models.ClassChores:      {MaxRequests: 60, Window: time.Hour},
			models.ClassBills:       {MaxRequests: 20, Window: time.Hour},
			models.ClassMealPlanner: {MaxRequests: 30, Window: time.Hour},
			models.ClassAnalytics:   {MaxRequests: 15, Window: time.Hour},
		},
		order: knownClasses,
	}
	return cfg
}

// Set overrides the limit for a class. Windows must be whole minutes that
// divide the clock hour evenly; anything else is rejected so window flooring
// stays aligned with wall-clock boundaries.
func (c *Config) Set(class models.EndpointClass, limit Limit) error {
	if !class.IsValid() {
		return fmt.Errorf("unknown endpoint class %q", class)
	}
	if limit.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive")
	}
	if err := validateWindow(limit.Window); err != nil {
		return err
	}
	c.classes[class] = limit
	return nil
}

func validateWindow(window time.Duration) error {
	minutes := int(window / time.Minute)
	if window <= 0 || window != time.Duration(minutes)*time.Minute {
		return fmt.Errorf("window must be a whole number of minutes")
	}
	if minutes < 60 && 60%minutes != 0 {
		return fmt.Errorf("window minutes must divide the hour evenly")
	}
	if minutes >= 60 && minutes%60 != 0 {
		return fmt.Errorf("windows over an hour must be whole hours")
	}
	return nil
}

// Resolve maps an endpoint key to its class and limit. Exact class names win,
// then substring containment against known classes, then the api default.
func (c *Config) Resolve(endpoint string) (models.EndpointClass, Limit) {
	if limit, ok := c.classes[models.EndpointClass(endpoint)]; ok {
		return models.EndpointClass(endpoint), limit
	}

	for _, class := range c.order {
		if strings.Contains(endpoint, class.String()) {
			return class, c.classes[class]
		}
	}

	return models.ClassAPI, c.classes[models.ClassAPI]
}

// Limit returns the limit for a class, falling back to the api default.
func (c *Config) Limit(class models.EndpointClass) Limit {
	if limit, ok := c.classes[class]; ok {
		return limit
	}
	return c.classes[models.ClassAPI]
}

// ApplyEnvOverrides reads HEARTH_RATELIMIT_<CLASS> variables formatted as
// "max/window" (e.g. "20/1h") and applies them on top of the defaults.
// Invalid values are returned as errors so startup fails loudly.
func (c *Config) ApplyEnvOverrides() error {
	for _, class := range c.order {
		envKey := "HEARTH_RATELIMIT_" + strings.ToUpper(strings.ReplaceAll(class.String(), "-", "_"))
		raw := os.Getenv(envKey)
		if raw == "" {
			continue
		}
		limit, err := parseLimit(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
		if err := c.Set(class, limit); err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
	}
	return nil
}

func parseLimit(raw string) (Limit, error) {
	maxPart, windowPart, ok := strings.Cut(raw, "/")
	if !ok {
		return Limit{}, fmt.Errorf("expected max/window, got %q", raw)
	}
	maxRequests, err := strconv.Atoi(strings.TrimSpace(maxPart))
	if err != nil {
		return Limit{}, fmt.Errorf("invalid max requests: %w", err)
	}
	window, err := time.ParseDuration(strings.TrimSpace(windowPart))
	if err != nil {
		return Limit{}, fmt.Errorf("invalid window: %w", err)
	}
	return Limit{MaxRequests: maxRequests, Window: window}, nil
}
