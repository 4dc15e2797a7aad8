package credentials

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"

	"auth-relay-go/internal/config"
)

// fakeSecretsManager answers GetSecretValueWithContext with a canned result.
type fakeSecretsManager struct {
	secretsmanageriface.SecretsManagerAPI

	out     *secretsmanager.GetSecretValueOutput
	err     error
	gotID   string
	callCnt int
}

func (f *fakeSecretsManager) GetSecretValueWithContext(_ aws.Context, in *secretsmanager.GetSecretValueInput, _ ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	f.callCnt++
	f.gotID = aws.StringValue(in.SecretId)
	return f.out, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatic(t *testing.T) {
	src := NewStatic("svc", "pw")
	creds, err := src.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if creds.Username != "svc" || creds.Password != "pw" {
		t.Errorf("creds = %+v, want svc/pw", creds)
	}
	if src.Name() != config.SourceStatic {
		t.Errorf("Name() = %q, want %q", src.Name(), config.SourceStatic)
	}
}

func TestSecretsManager_SecretString(t *testing.T) {
	fake := &fakeSecretsManager{
		out: &secretsmanager.GetSecretValueOutput{
			SecretString: aws.String(`{"username":"svc","password":"pw"}`),
		},
	}
	src := NewSecretsManager(fake, "prod/relay", discardLogger())

	creds, err := src.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if creds.Username != "svc" || creds.Password != "pw" {
		t.Errorf("creds = %+v, want svc/pw", creds)
	}
	if fake.gotID != "prod/relay" {
		t.Errorf("SecretId = %q, want %q", fake.gotID, "prod/relay")
	}
}

func TestSecretsManager_SecretBinary(t *testing.T) {
	fake := &fakeSecretsManager{
		out: &secretsmanager.GetSecretValueOutput{
			SecretBinary: []byte(`{"username":"bin","password":"pw"}`),
		},
	}
	src := NewSecretsManager(fake, "prod/relay", discardLogger())

	creds, err := src.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if creds.Username != "bin" {
		t.Errorf("Username = %q, want %q", creds.Username, "bin")
	}
}

func TestSecretsManager_NotFound(t *testing.T) {
	fake := &fakeSecretsManager{
		err: awserr.New(secretsmanager.ErrCodeResourceNotFoundException, "no such secret", nil),
	}
	src := NewSecretsManager(fake, "missing", discardLogger())

	creds, err := src.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil for missing secret", err)
	}
	if creds.Complete() {
		t.Errorf("creds = %+v, want empty", creds)
	}
}

func TestSecretsManager_APIError(t *testing.T) {
	fake := &fakeSecretsManager{
		err: awserr.New("AccessDeniedException", "denied", nil),
	}
	src := NewSecretsManager(fake, "prod/relay", discardLogger())

	_, err := src.Resolve(context.Background())
	if err == nil {
		t.Fatal("Resolve() expected error, got nil")
	}
	var aerr awserr.Error
	if !errors.As(err, &aerr) || aerr.Code() != "AccessDeniedException" {
		t.Errorf("error = %v, want wrapped AccessDeniedException", err)
	}
}

func TestSecretsManager_MalformedSecretDoesNotLeak(t *testing.T) {
	fake := &fakeSecretsManager{
		out: &secretsmanager.GetSecretValueOutput{
			SecretString: aws.String("hunter2"),
		},
	}
	src := NewSecretsManager(fake, "prod/relay", discardLogger())

	_, err := src.Resolve(context.Background())
	if err == nil {
		t.Fatal("Resolve() expected error for non-JSON secret, got nil")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error leaks secret value: %v", err)
	}
}

func TestLoad_LogsWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	creds, err := Load(NewStatic("svc", "topsecret"), logger)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !creds.Complete() {
		t.Error("Complete() = false, want true")
	}
	if strings.Contains(buf.String(), "topsecret") || strings.Contains(buf.String(), "svc") {
		t.Errorf("log output contains credential values: %q", buf.String())
	}
}

func TestLoad_Incomplete(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	creds, err := Load(NewStatic("svc", ""), logger)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if creds.Complete() {
		t.Error("Complete() = true, want false")
	}
	if !strings.Contains(buf.String(), "credentials incomplete") {
		t.Errorf("expected incomplete warning, got %q", buf.String())
	}
}

func TestNewSource_Static(t *testing.T) {
	cfg := &config.Config{Credentials: config.CredentialsConfig{
		Source:   config.SourceStatic,
		Username: "u",
		Password: "p",
	}}

	src, err := NewSource(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if _, ok := src.(*Static); !ok {
		t.Errorf("NewSource() = %T, want *Static", src)
	}
}
