// Command seed loads the reference data a fresh store needs: an administrator,
// two registers and the payment methods. Safe to run repeatedly.
//
// Usage: go run ./cmd/seed -password <admin password>
package main

import (
	"context"
	"flag"
	"os"

	"retailpos/internal/config"
	"retailpos/internal/infra"
	"retailpos/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	username := flag.String("username", "admin", "administrator username")
	password := flag.String("password", "", "administrator password (required)")
	email := flag.String("email", "", "administrator email")
	flag.Parse()

	if len(*password) < 8 {
		log.Fatal().Msg("-password must have at least 8 characters")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.AutoMigrate = true

	db, err := infra.NewDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	ctx := context.Background()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedAdmin(tx, *username, *password, *email); err != nil {
			return err
		}
		if err := seedRegisters(tx); err != nil {
			return err
		}
		return seedPaymentMethods(tx, cfg.DefaultPaymentMethod)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Str("username", *username).Msg("seed complete")
}

func seedAdmin(tx *gorm.DB, username, password, email string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	admin := model.User{
		Username:     username,
		FullName:     "Administrador",
		PasswordHash: string(hash),
		Role:         model.RoleAdministrador,
		Active:       true,
	}
	if email != "" {
		admin.Email = &email
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "role", "active", "email", "updated_at"}),
	}).Create(&admin).Error
}

func seedRegisters(tx *gorm.DB) error {
	registers := []model.CashRegister{
		{RegisterNumber: "CAJA-01", Location: "Frente", Active: true},
		{RegisterNumber: "CAJA-02", Location: "Frente", Active: true},
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "register_number"}},
		DoNothing: true,
	}).Create(&registers).Error
}

func seedPaymentMethods(tx *gorm.DB, defaultMethod string) error {
	if defaultMethod == "" {
		defaultMethod = "Efectivo"
	}
	methods := []model.PaymentMethod{
		{Name: defaultMethod, IsDefault: true, Active: true},
		{Name: "Tarjeta de Crédito", RequiresReference: true, Active: true},
		{Name: "Tarjeta de Débito", RequiresReference: true, Active: true},
		{Name: "Transferencia", RequiresReference: true, Active: true},
		{Name: "Yape / Plin", RequiresReference: true, Active: true},
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"requires_reference", "is_default", "active"}),
	}).Create(&methods).Error
}
