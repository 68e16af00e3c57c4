// Command simulator runs a fleet of synthetic drivers that plan a route
// and broadcast positions along it, feeding the matching and tracking
// pipeline end to end without real devices.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ridehail/internal/broadcast"
	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/ingest"
	"ridehail/internal/logging"
	"ridehail/internal/route"
)

func main() {
	var (
		drivers  int
		duration time.Duration
		centerLa float64
		centerLo float64
		spreadKm float64
	)
	flag.IntVar(&drivers, "drivers", 10, "number of synthetic drivers")
	flag.DurationVar(&duration, "duration", 2*time.Minute, "trip duration per driver")
	flag.Float64Var(&centerLa, "lat", 10.7769, "center latitude")
	flag.Float64Var(&centerLo, "lng", 106.7009, "center longitude")
	flag.Float64Var(&spreadKm, "spread", 3.0, "start/end spread around the center in km")
	flag.Parse()

	cfg := config.Load()
	log := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	producer := ingest.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	provider := route.NewOSRMProvider(cfg.Routing.OSRMEndpoint, cfg.Routing.RequestTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	center := geo.Point{Lat: centerLa, Lng: centerLo}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		driverID := fmt.Sprintf("sim-driver-%02d", i)
		from := jitter(rng, center, spreadKm)
		to := jitter(rng, center, spreadKm)

		wg.Add(1)
		go func() {
			defer wg.Done()
			planner := route.NewPlanner(provider, cfg.Tracking.RefetchThresholdM, log)
			path := planner.Plan(ctx, from, to)

			b := broadcast.NewBroadcaster(driverID, nil, kafkaPusher{producer}, nil, broadcast.Config{
				SampleInterval: cfg.Tracking.SampleInterval,
				MinDistanceM:   cfg.Tracking.MinBroadcastDistM,
			}, log)
			if err := b.SimulateAlongPath(ctx, path, duration); err != nil && ctx.Err() == nil {
				log.Warn("simulated trip aborted", "driver_id", driverID, "error", err)
			}
		}()
	}

	log.Info("simulator running", "drivers", drivers, "duration", duration)
	wg.Wait()
	log.Info("simulator done")
}

// kafkaPusher adapts the Kafka producer to the broadcaster's Pusher.
type kafkaPusher struct {
	producer *ingest.Producer
}

func (p kafkaPusher) PushLocation(_ context.Context, sample domain.LocationSample) error {
	return p.producer.PublishSample(sample)
}

// jitter offsets a point by up to radiusKm in a random direction.
func jitter(rng *rand.Rand, p geo.Point, radiusKm float64) geo.Point {
	// Rough degrees-per-km conversion is fine for simulation spread.
	dLat := (rng.Float64()*2 - 1) * radiusKm / 111.0
	dLng := (rng.Float64()*2 - 1) * radiusKm / 111.0
	return geo.Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}
