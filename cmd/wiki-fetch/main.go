package main

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/nachtfalke/wiki-action-client/pkg/client"
	"github.com/nachtfalke/wiki-action-client/pkg/logging"
	"github.com/nachtfalke/wiki-action-client/pkg/pagination"
	"github.com/nachtfalke/wiki-action-client/pkg/sessionstore"
	"github.com/nachtfalke/wiki-action-client/pkg/wikixml"
)

func main() {
	logging.Setup(logging.DefaultConfig())

	// Configuration from environment
	apiURL := getEnv("WIKI_API_URL", "https://en.wikipedia.org/w/api.php")
	userAgent := getEnv("USER_AGENT", "wiki-action-client/0.1.0")
	limit := getEnvInt("LIMIT", 50)
	perPage := getEnvInt("PER_PAGE", 0)
	redisURL := getEnv("REDIS_URL", "")
	snapshotKey := getEnv("SNAPSHOT_KEY", "default")

	c, err := client.New(client.DefaultConfig(apiURL, userAgent), wikixml.New())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	titles, err := fetchAllPages(ctx, c, limit, perPage)
	if err != nil {
		log.Fatal().Err(err).Msg("Listing failed")
	}
	for _, title := range titles {
		fmt.Println(title)
	}
	log.Info().Int("pages", len(titles)).Str("endpoint", apiURL).Msg("Listing complete")

	// Persist the session state so a later run can reuse cookies and tokens.
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}

		store := sessionstore.NewStore(redisClient, 0, log.Logger)
		if err := store.Save(ctx, snapshotKey, c.Session().Snapshot()); err != nil {
			log.Fatal().Err(err).Msg("Failed to save session snapshot")
		}
		log.Info().Str("key", snapshotKey).Msg("Session snapshot saved")
	}
}

// fetchAllPages lists page titles via the allpages module, up to limit.
func fetchAllPages(ctx context.Context, c *client.Client, limit, perPage int) ([]string, error) {
	template := func() (*client.Request, error) {
		req := client.NewGet("query")
		if err := req.Set("list", "allpages"); err != nil {
			return nil, err
		}
		return req, nil
	}

	d := pagination.New[string](c, c.Decoder(), template, decodeTitles,
		pagination.Options{PerPage: perPage, Total: limit, LimitParam: "aplimit"}, log.Logger)
	return d.All(ctx)
}

// decodeTitles extracts <p title="..."/> entries from a query page.
func decodeTitles(body []byte) ([]string, error) {
	var titles []string
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return titles, nil
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "p" {
			continue
		}
		for _, a := range el.Attr {
			if a.Name.Local == "title" {
				titles = append(titles, a.Value)
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", value).Msg("Invalid integer in environment")
	}
	return n
}
