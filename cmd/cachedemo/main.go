package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"querycache"
	"querycache/internal/config"
	"querycache/internal/obs"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <config.json>", os.Args[0])
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read config: %v", err)
	}
	cfg, err := config.ParseJSON(data)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	obs.InitLogger()
	metrics := obs.NewMetrics()
	obs.SetDefaultMetrics(metrics)

	client := querycache.New(querycache.Options{
		Metrics:       metrics,
		EvictionGrace: cfg.EvictionGrace(),
	})
	defer client.Close()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	subscriptions := make([]*querycache.Subscription, 0, len(cfg.Resources))
	for _, res := range cfg.Resources {
		res := res
		k := querycache.NewKey(res.Name)
		sub := client.Subscribe(k, func(entry querycache.Entry) {
			fmt.Printf("%s status=%s fetched_at=%s\n", k, entry.Status, entry.FetchedAt.Format(time.RFC3339))
		})
		subscriptions = append(subscriptions, sub)

		go func() {
			_, err := client.EnsureFresh(context.Background(), k, fetchJSON(httpClient, cfg.APIBaseURL+res.Path), querycache.FetchOptions{
				StaleAfter:      res.StaleAfter(),
				RefetchInterval: res.RefetchInterval(),
			})
			if err != nil {
				fmt.Printf("%s initial fetch: %v\n", k, err)
			}
		}()
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: cfg.Listen(), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// fetchJSON builds a Fetcher that GETs url and decodes the JSON body into
// a generic value.
func fetchJSON(client *http.Client, url string) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, &querycache.NetworkError{Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &querycache.RemoteError{Code: resp.StatusCode, Message: string(body)}
		}
		var payload any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}
