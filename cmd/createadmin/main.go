// Command createadmin inserts a back-office account. Accounts are never
// created over HTTP.
//
//	createadmin -email ops@example.com -password 'Rotate2026x' [-role SUPER_ADMIN]
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/config"
	"github.com/iliyamo/explanation-reservation/internal/database"
	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
	"github.com/iliyamo/explanation-reservation/internal/utils"
)

func main() {
	email := flag.String("email", "", "login email")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "initial password (or ADMIN_PASSWORD)")
	role := flag.String("role", model.RoleAdmin, "ADMIN or SUPER_ADMIN")
	flag.Parse()

	cfg := config.Load()
	log := config.NewLogger(cfg)

	r := strings.ToUpper(strings.TrimSpace(*role))
	if r != model.RoleAdmin && r != model.RoleSuperAdmin {
		log.Fatalf("unknown role %q", *role)
	}
	if strings.TrimSpace(*email) == "" {
		log.Fatal("-email is required")
	}
	if err := utils.CheckPasswordPolicy(*password); err != nil {
		log.Fatal(err)
	}

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := repository.NewUserRepo(db).Create(ctx, *email, *password, r, cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		log.WithField("email", *email).Fatal("account already exists")
	}
	if err != nil {
		log.WithError(err).Fatal("create account failed")
	}
	log.WithFields(logrus.Fields{"user_id": id, "role": r}).Info("admin account created")
}
