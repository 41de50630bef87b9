package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/chatterbox-im/chatterbox/internal/daemon"
	"github.com/chatterbox-im/chatterbox/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	envFlag := flag.String("env", "", "optional .env file with backend credentials")
	flag.Parse()

	if *envFlag != "" {
		if err := godotenv.Load(*envFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: load %s: %v\n", *envFlag, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName}),
	)

	app.Run()
}
