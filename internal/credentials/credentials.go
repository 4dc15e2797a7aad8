// Package credentials resolves the upstream service account once at startup.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"

	"auth-relay-go/internal/config"
	"auth-relay-go/internal/model"
)

const resolveTimeout = 10 * time.Second

// Source yields the credential pair. A missing pair is not an error: callers
// check model.Credentials.Complete.
type Source interface {
	Resolve(ctx context.Context) (model.Credentials, error)
	Name() string
}

// Static returns credentials taken from the config file or the environment.
type Static struct {
	creds model.Credentials
}

// NewStatic creates a Static source.
func NewStatic(username, password string) *Static {
	return &Static{creds: model.Credentials{Username: username, Password: password}}
}

// Resolve implements Source.
func (s *Static) Resolve(context.Context) (model.Credentials, error) {
	return s.creds, nil
}

// Name implements Source.
func (s *Static) Name() string { return config.SourceStatic }

// SecretsManager reads a JSON secret {"username": ..., "password": ...}
// from AWS Secrets Manager.
type SecretsManager struct {
	api      secretsmanageriface.SecretsManagerAPI
	secretID string
	logger   *slog.Logger
}

// NewSecretsManager creates a SecretsManager source backed by api.
func NewSecretsManager(api secretsmanageriface.SecretsManagerAPI, secretID string, logger *slog.Logger) *SecretsManager {
	return &SecretsManager{
		api:      api,
		secretID: secretID,
		logger:   logger.With("component", "secretsmanager"),
	}
}

// Name implements Source.
func (s *SecretsManager) Name() string { return config.SourceSecretsManager }

// Resolve implements Source. A secret that does not exist yields empty
// credentials so the relay reports a configuration error per request.
func (s *SecretsManager) Resolve(ctx context.Context) (model.Credentials, error) {
	out, err := s.api.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			s.logger.Warn("secret not found", "secret_id", s.secretID)
			return model.Credentials{}, nil
		}
		return model.Credentials{}, fmt.Errorf("get secret %s: %w", s.secretID, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		raw = out.SecretBinary
	default:
		return model.Credentials{}, nil
	}

	var creds model.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		// The decode error never echoes the secret payload.
		return model.Credentials{}, fmt.Errorf("decode secret %s: not a JSON object with username and password", s.secretID)
	}
	return creds, nil
}

// NewSource builds the Source selected by credentials.source.
func NewSource(cfg *config.Config, logger *slog.Logger) (Source, error) {
	switch cfg.Credentials.Source {
	case config.SourceSecretsManager:
		awsCfg := aws.NewConfig()
		if cfg.Credentials.Region != "" {
			awsCfg = awsCfg.WithRegion(cfg.Credentials.Region)
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return nil, fmt.Errorf("aws session: %w", err)
		}
		return NewSecretsManager(secretsmanager.New(sess), cfg.Credentials.SecretID, logger), nil
	default:
		return NewStatic(cfg.Credentials.Username, cfg.Credentials.Password), nil
	}
}

// Load resolves src once. The result is shared read-only for the process lifetime.
func Load(src Source, logger *slog.Logger) (*model.Credentials, error) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	creds, err := src.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	if creds.Complete() {
		logger.Info("credentials resolved", "source", src.Name())
	} else {
		logger.Warn("credentials incomplete; login and getcredentials will fail",
			"source", src.Name(),
			"username_set", creds.Username != "",
			"password_set", creds.Password != "",
		)
	}
	return &creds, nil
}
