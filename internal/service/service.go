// Package service holds the operations of MediaBib: reader provisioning,
// credential reset, reader self-service, library and reader administration
// and token issuance. Every operation takes the acting policy.Actor and asks
// the policy package before touching the store.
package service

import (
	"context"
	"errors"
	"time"

	"mediabib-service/internal/model"
	"mediabib-service/internal/notify"
	"mediabib-service/pkg/config"
	"mediabib-service/pkg/jwtutil"
	"mediabib-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configures a Service
type Options struct {
	Notifier notify.Notifier
	JWT      *jwtutil.JWTUtil
	Accounts config.AccountsConfig
}

// Service implements every MediaBib operation on top of one store
type Service struct {
	db       *gorm.DB
	notifier notify.Notifier
	jwt      *jwtutil.JWTUtil
	accounts config.AccountsConfig
	now      func() time.Time

	cardNumber func(libraryCode string) (string, error)
}

// New creates a Service; zero account settings fall back to production defaults
func New(db *gorm.DB, opts Options) *Service {
	accounts := opts.Accounts
	if accounts.BcryptCost == 0 {
		accounts.BcryptCost = bcrypt.DefaultCost
	}
	if accounts.CardIssueAttempts <= 0 {
		accounts.CardIssueAttempts = 20
	}
	if accounts.PasswordLength <= 0 {
		accounts.PasswordLength = 12
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger.GetLogger())
	}
	return &Service{
		db:       db,
		notifier: notifier,
		jwt:      opts.JWT,
		accounts: accounts,
		now:      time.Now,

		cardNumber: model.CardNumberCandidate,
	}
}

func (s *Service) hashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), s.accounts.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
