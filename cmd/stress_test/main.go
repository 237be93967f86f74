package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-storefront/internal/adapter/storage"
	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/core/service"
)

func main() {
	redisAddr := flag.String("redis", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
	totalRequests := flag.Int("n", 200, "number of concurrent adds")
	owners := flag.Int("owners", 4, "cart services sharing the slot, like separate server processes")
	flag.Parse()
	if *owners < 1 {
		*owners = 1
	}

	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	sessionID := "stress-" + uuid.NewString()
	defer rdb.Del(ctx, service.SlotName(sessionID))

	redisAdapter := storage.NewRedisAdapter(rdb)

	// Each CartService serializes its own writers only. Owners do not see
	// each other's carts, so with more than one the slot is last writer wins.
	services := make([]*service.CartService, *owners)
	for i := range services {
		services[i] = service.NewCartService(redisAdapter, service.WithCartPublisher(redisAdapter))
	}

	// Count published cart updates
	subCtx, stopSub := context.WithCancel(ctx)
	updates, err := redisAdapter.SubscribeCart(subCtx, sessionID)
	if err != nil {
		log.Fatalf("failed to subscribe: %v", err)
	}
	var published atomic.Int32
	subDone := make(chan struct{})
	go func() {
		defer close(subDone)
		for range updates {
			published.Add(1)
		}
	}()

	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 1; i <= *totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			p := domain.Product{ID: id, Title: fmt.Sprintf("product-%d", id), Price: decimal.NewFromInt(1)}
			carts := services[id%len(services)]
			if err := carts.Add(ctx, sessionID, p); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// let the last pub/sub messages arrive
	time.Sleep(500 * time.Millisecond)
	stopSub()
	<-subDone

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Adds:       %d\n", *totalRequests)
	fmt.Printf("Cart Owners:      %d\n", *owners)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Published:        %d\n", published.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Verify the stored snapshot with a fresh reader
	data, err := redisAdapter.LoadSlot(ctx, service.SlotName(sessionID))
	if err != nil {
		log.Fatalf("failed to load cart: %v", err)
	}
	stored, err := domain.DecodeCart(data)
	if err != nil {
		log.Fatalf("stored cart is corrupt: %v", err)
	}

	ok := fail == 0
	lost := int(success) - len(stored)
	switch {
	case lost == 0:
		fmt.Printf("PASS: all %d adds persisted\n", len(stored))
	case *owners == 1:
		fmt.Printf("FAIL: one owner lost %d of %d adds\n", lost, success)
		ok = false
	default:
		// expected: snapshots from different owners overwrite each other
		fmt.Printf("LOST: %d of %d adds overwritten across %d owners (last writer wins)\n", lost, success, *owners)
	}
	if fail > 0 {
		fmt.Printf("FAIL: %d adds returned an error\n", fail)
	}

	if !stored.Total().Equal(decimal.NewFromInt(int64(len(stored)))) {
		fmt.Printf("FAIL: total %s does not match %d items\n", stored.Total(), len(stored))
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
