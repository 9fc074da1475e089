package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/core/service"
	"github.com/rl1809/branch-delivery/internal/wire"
)

const (
	declared      = 20
	totalRequests = 50
)

func main() {
	backend := flag.String("backend", wire.BackendRedis, "store backend: memory, sqlite, mysql or redis")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address")
	mysqlDSN := flag.String("mysql-dsn", "root:root@tcp(localhost:3306)/branchdelivery?parseTime=true", "MySQL DSN")
	redisLocks := flag.Bool("redis-locks", true, "use redsync locks (requires Redis)")
	flag.Parse()

	ctx := context.Background()

	res, err := wire.Open(ctx, wire.Options{
		Store:      *backend,
		RedisAddr:  *redisAddr,
		MySQLDSN:   *mysqlDSN,
		SQLitePath: "stress.db",
		RedisLocks: *redisLocks,
	}, nil)
	if err != nil {
		log.Fatalf("failed to open backend: %v", err)
	}
	defer res.Close()

	svc := service.NewReconciliationService(res.Store, res.Store, res.Locker, nil, nil)

	// Fresh delivery and item per run so stale data never interferes
	item := domain.ItemIdentity{Type: "stress", Key: fmt.Sprintf("run-%d", time.Now().UnixNano())}
	if err := svc.SetStock(ctx, domain.StockKey{Location: "warehouse", Item: item}, declared); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}
	d, err := svc.CreateDelivery(ctx, "warehouse", "branch-1")
	if err != nil {
		log.Fatalf("failed to create delivery: %v", err)
	}
	it, err := svc.CreateDeliveryItem(ctx, service.CreateItemInput{DeliveryID: d.ID, Item: item, DeclaredQuantity: declared})
	if err != nil {
		log.Fatalf("failed to create item: %v", err)
	}

	// Counters
	var successCount, conflictCount, otherCount atomic.Int32

	// Every clerk counts against the version they loaded; only one may win
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(clerk int) {
			defer wg.Done()

			_, err := svc.ReceiveDeliveryItem(ctx, service.ReceiveInput{
				ItemID:          it.ID,
				Receiver:        fmt.Sprintf("clerk-%d", clerk),
				ActualQuantity:  clerk % (declared + 1),
				ExpectedVersion: it.Version,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrConcurrentModification):
				conflictCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("clerk %d: %v", clerk, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	conflict := conflictCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Backend:          %s\n", *backend)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Conflicts:        %d\n", conflict)
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == 1 && conflict == totalRequests-1 {
		fmt.Printf("PASS: Exactly 1 receive succeeded, %d conflicted\n", conflict)
	} else {
		fmt.Printf("FAIL: Expected 1 success/%d conflicts, got %d/%d\n", totalRequests-1, success, conflict)
	}

	final, err := svc.GetDeliveryItem(ctx, it.ID)
	if err != nil {
		log.Fatalf("failed to reload item: %v", err)
	}
	fmt.Printf("Final Item:       %s (received %d, version %d)\n", final.Status, final.ReceivedQuantity, final.Version)

	if err := final.Validate(); err == nil && final.Version == it.Version+1 {
		fmt.Println("PASS: Item written exactly once")
	} else {
		fmt.Printf("FAIL: Item state %+v (%v)\n", final, err)
	}

	stock, err := svc.GetStock(ctx, domain.StockKey{Location: "warehouse", Item: item})
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	if stock == 0 {
		fmt.Println("PASS: Ledger untouched by receives")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", stock)
	}
}
