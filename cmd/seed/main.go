package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"school-payments/internal/config"
	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/api"
	pg "school-payments/internal/infra/db/postgres"
	"school-payments/internal/usecase"
)

const demoPassword = "demo-password-1"

func main() {
	_ = godotenv.Load()

	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, config.DatabaseConfig{URL: cfg.Database.URL, MaxConns: 4})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	now := time.Now()

	// Prices are only written when absent so admin edits survive a re-seed.
	pricingRepo := pg.NewServicePricingRepo(pool)
	prices := []struct {
		Type  model.ServiceType
		Minor int64
		Desc  string
	}{
		{model.ServicePasswordReset, 500, "Password reset (two uses)"},
		{model.ServiceReviewAssessment, 200, "Assessment review (24 hours)"},
		{model.ServiceRetakeAssessment, 300, "Assessment retake"},
	}
	for _, p := range prices {
		if existing, err := pricingRepo.FindByServiceType(ctx, repository.NoTX, p.Type); err == nil {
			fmt.Printf("price present: %s = %s %s\n", existing.ServiceType, existing.DisplayAmount(), existing.Currency)
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			log.Fatalf("read price %s: %v", p.Type, err)
		}
		sp, err := model.NewServicePricing(p.Type, p.Minor, usecase.DefaultSettings[usecase.KeyCurrency], p.Desc)
		if err != nil {
			log.Fatalf("price %s: %v", p.Type, err)
		}
		sp.UpdatedAt = now
		if err := pricingRepo.Save(ctx, repository.NoTX, sp); err != nil {
			log.Fatalf("save price %s: %v", p.Type, err)
		}
		fmt.Printf("seeded price: %s = %s %s\n", sp.ServiceType, sp.DisplayAmount(), sp.Currency)
	}

	// Tunables are plain values; gateway keys are set through the admin API so they get encrypted.
	configRepo := pg.NewConfigRepo(pool)
	for key, value := range usecase.DefaultSettings {
		if _, err := configRepo.Find(ctx, repository.NoTX, key); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			log.Fatalf("read setting %s: %v", key, err)
		}
		if err := configRepo.Upsert(ctx, repository.NoTX, &model.ConfigEntry{Key: key, Value: value, UpdatedAt: now}); err != nil {
			log.Fatalf("save setting %s: %v", key, err)
		}
		fmt.Printf("seeded setting: %s=%s\n", key, value)
	}

	// ---- Demo accounts ----
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt: %v", err)
	}
	accounts := []*model.Account{
		{ID: "demo-student", Email: "student@school.test", FirstName: "Ama", LastName: "Mensah", Phone: "+233200000001", PasswordHash: string(hash), Role: model.RoleStudent},
		{ID: "demo-admin", Email: "admin@school.test", FirstName: "Kofi", LastName: "Owusu", Phone: "+233200000002", PasswordHash: string(hash), Role: model.RoleAdmin},
	}
	accountRepo := pg.NewAccountRepo(pool)
	for _, a := range accounts {
		if err := accountRepo.Save(ctx, repository.NoTX, a); err != nil {
			log.Fatalf("save account %s: %v", a.ID, err)
		}
	}

	completed := now.Add(-3 * time.Hour)
	enrollmentRepo := pg.NewEnrollmentRepo(pool)
	if err := enrollmentRepo.Save(ctx, repository.NoTX, &model.Enrollment{
		UserID:          "demo-student",
		AssessmentID:    "demo-assessment",
		MaxRetakes:      1,
		LastCompletedAt: &completed,
	}); err != nil {
		log.Fatalf("save enrollment: %v", err)
	}

	auth := api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	for _, a := range accounts {
		tok, err := auth.Mint(a.ID, a.Role)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Printf("%s (%s) password=%s\n  token: %s\n", a.Email, a.Role, demoPassword, tok)
	}

	fmt.Println("✅ Seeding complete.")
}
