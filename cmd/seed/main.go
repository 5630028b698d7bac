// Command seed prepares the database schema and optionally issues a batch of
// premium codes for a tier, printing the tokens for distribution.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"premium-access/internal/config"
	"premium-access/internal/domain"
	pg "premium-access/internal/infra/db/postgres"
	"premium-access/internal/infra/logging"
	"premium-access/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	tier := flag.String("tier", "", "tier to issue codes for (empty: schema only)")
	count := flag.Int("count", 1, "how many codes to issue")
	issuer := flag.String("issuer", "seed", "generated_by audit value")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}
	logger.Info().Msg("schema ensured")

	if *tier == "" {
		return
	}

	catalog, err := cfg.PlanCatalog()
	if err != nil {
		log.Fatalf("plan catalog: %v", err)
	}
	codeUC := usecase.NewCodeUseCase(pg.NewPremiumCodeRepo(pool), catalog, pg.NewTxManager(pool), domain.RealClock, logger)

	for i := 0; i < *count; i++ {
		code, err := codeUC.Create(ctx, usecase.CreateCodeParams{Tier: *tier, GeneratedBy: *issuer})
		if err != nil {
			log.Fatalf("create code: %v", err)
		}
		fmt.Printf("%s\t%s\texpires %s\n", code.Code, code.Tier, code.ExpiresAt.Format(time.RFC3339))
	}
}
