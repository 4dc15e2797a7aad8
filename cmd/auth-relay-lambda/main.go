package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"auth-relay-go/internal/app"
	"auth-relay-go/internal/config"
	"auth-relay-go/internal/serverless"
)

// Set by goreleaser ldflags.
var version = "dev"

func main() {
	// Lambda passes no arguments; settings come from the environment.
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("auth-relay-lambda"),
		kong.Description("Credential relay for API Gateway Lambda proxy integration."),
	)

	var e *echo.Echo
	a := fx.New(
		app.Module(&cli, version),
		fx.Populate(&e),
		fx.NopLogger,
	)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "startup:", err)
		os.Exit(1)
	}

	lambda.Start(serverless.NewHandler(e).Handle)
}
