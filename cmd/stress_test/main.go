// Command stress_test fires concurrent purchases at one product against real
// Redis and MySQL and checks that no unit was sold twice.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/flash-sale-gate/internal/adapter/storage"
	"github.com/rl1809/flash-sale-gate/internal/config"
	"github.com/rl1809/flash-sale-gate/internal/core/domain"
	"github.com/rl1809/flash-sale-gate/internal/core/service"
)

var errCheckFailed = errors.New("stress checks failed")

type runParams struct {
	productID int64
	stock     int64
	requests  int
}

func main() {
	var p runParams
	flag.Int64Var(&p.productID, "product", 9001, "product id used for the run")
	flag.Int64Var(&p.stock, "stock", 20, "initial durable stock")
	flag.IntVar(&p.requests, "requests", 50, "number of concurrent purchases")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := run(context.Background(), cfg, p); err != nil {
		if !errors.Is(err, errCheckFailed) {
			log.Error().Err(err).Msg("stress run aborted")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, p runParams) error {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return errors.Wrap(err, "open mysql")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping mysql")
	}
	if err := storage.MigrateDatabase(db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	cache := storage.NewRedisAdapter(rdb, cfg.Redis.KeyPrefix)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	if err := mysqlAdapter.SeedProduct(ctx, domain.Product{
		ID:         p.productID,
		Name:       fmt.Sprintf("stress-item-%d", p.productID),
		UnitPrice:  decimal.RequireFromString("1.00"),
		StockCount: p.stock,
	}); err != nil {
		return errors.Wrap(err, "seed product")
	}
	// Start from a cold gate so the first purchase seeds it.
	if err := cache.DeleteStock(ctx, p.productID); err != nil {
		return errors.Wrap(err, "clear gate")
	}

	svc := service.NewPurchaseService(cache, mysqlAdapter,
		service.WithPurchaseTimeout(cfg.PurchaseTimeout),
		service.WithCompensationTimeout(cfg.CompensationTimeout),
	)

	counts := map[domain.Outcome]*atomic.Int64{
		domain.OutcomeSuccess:         {},
		domain.OutcomeSoldOut:         {},
		domain.OutcomeFailure:         {},
		domain.OutcomeSystemError:     {},
		domain.OutcomeProductNotFound: {},
	}

	var g errgroup.Group
	start := time.Now()
	for i := 0; i < p.requests; i++ {
		g.Go(func() error {
			res := svc.Purchase(ctx, p.productID)
			n, ok := counts[res.Outcome]
			if !ok {
				return errors.Errorf("unexpected outcome %q", res.Outcome)
			}
			n.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	status, err := svc.GetStock(ctx, p.productID)
	if err != nil {
		return errors.Wrap(err, "read final stock")
	}

	success := counts[domain.OutcomeSuccess].Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", p.stock)
	fmt.Printf("Total Requests:   %d\n", p.requests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", counts[domain.OutcomeSoldOut].Load())
	fmt.Printf("Failed:           %d\n", counts[domain.OutcomeFailure].Load())
	fmt.Printf("System Error:     %d\n", counts[domain.OutcomeSystemError].Load())
	fmt.Printf("Not Found:        %d\n", counts[domain.OutcomeProductNotFound].Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Final Gate:       %d (present=%t)\n", status.Gate, status.GatePresent)
	fmt.Printf("Final Durable:    %d\n", status.Durable)
	fmt.Println("==========================================")

	ok := true
	if status.Durable < 0 || success != p.stock-status.Durable {
		fmt.Printf("FAIL: %d successes but durable stock moved from %d to %d\n", success, p.stock, status.Durable)
		ok = false
	}
	if success > p.stock {
		fmt.Printf("FAIL: oversold, %d successes for %d units\n", success, p.stock)
		ok = false
	}
	if status.GatePresent && status.Gate != status.Durable {
		fmt.Printf("FAIL: gate %d disagrees with durable %d\n", status.Gate, status.Durable)
		ok = false
	}
	if !ok {
		return errCheckFailed
	}

	fmt.Println("PASS: no oversell, gate and durable stock agree")
	return nil
}
