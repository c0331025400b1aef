package main

import (
	"context"
	"flag"
	"log"
	"time"

	"ekh_mining/internal/config"
	"ekh_mining/internal/domain"
	"ekh_mining/internal/identity"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"
	"ekh_mining/internal/store"
)

func main() {
	userID := flag.String("user", "test-user-1", "user id (token subject)")
	name := flag.String("name", "testuser", "display name")
	usd := flag.Float64("usd", 0, "seed a completed presale purchase of this amount")
	flag.Parse()

	// expects the same env as the server; AUTH_PROVIDER must be jwt
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	if cfg.AuthProvider != config.AuthJWT {
		log.Fatal("create_test_user only issues JWTs, set AUTH_PROVIDER=jwt")
	}

	ctx := context.Background()
	backend, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	exec := retry.MustNew(retry.Config{MaxRetries: cfg.RetryMaxRetries, BaseDelay: cfg.RetryBaseDelay, MaxDelay: cfg.RetryMaxDelay})
	profiles := repository.NewProfileRepository(backend, exec)

	ident := domain.Identity{ID: *userID, Name: *name}
	p, created, err := profiles.LoadOrCreate(ctx, &ident)
	if err != nil {
		log.Fatalf("load or create profile: %v", err)
	}
	if created {
		log.Printf("profile created id=%s\n", p.ID)
	} else {
		log.Printf("profile already exists id=%s\n", p.ID)
	}
	log.Printf("user_id=%s referral_code=%s coins=%.4f cps=%.4f\n", p.UserID, p.ReferralCode, p.TotalCoins, p.CoinsPerSecond)

	if *usd > 0 {
		purchase := &domain.PresalePurchase{
			UserID:        p.UserID,
			AmountUSD:     *usd,
			TokensAmount:  *usd * 100,
			Status:        domain.PurchaseStatusCompleted,
			PaymentMethod: "seed",
		}
		if err := backend.AddPurchase(ctx, purchase); err != nil {
			log.Fatalf("add purchase: %v", err)
		}
		log.Printf("purchase seeded id=%s amount_usd=%.2f\n", purchase.ID, purchase.AmountUSD)
	}

	verifier, err := identity.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	token, err := verifier.Issue(ident, 24*time.Hour)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	log.Printf("token=%s\n", token)
}
