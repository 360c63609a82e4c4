package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/example/cenv/internal/cenv"
	"github.com/example/cenv/internal/cenv/config"
	"github.com/example/cenv/internal/cenv/gitops"
	"github.com/example/cenv/internal/cenv/paths"
	"github.com/example/cenv/internal/cenv/process"
	"github.com/example/cenv/internal/cenv/publish"
	"github.com/example/cenv/internal/cli"
	"github.com/example/cenv/internal/logging"
)

var (
	exitFunc           = os.Exit
	stdout   io.Writer = os.Stdout
	stderr   io.Writer = os.Stderr
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(stderr, cli.RenderError(err))
		exitFunc(1)
	}
}

func run(args []string) error {
	resolver, err := paths.Resolve()
	if err != nil {
		return err
	}
	cfg := config.Load(resolver.HomeDir())
	log := logging.New(stderr, cfg.LogLevel)

	fs := afero.NewOsFs()
	git := gitops.New(cfg.GitTimeout, log)
	store, err := cenv.NewStore(fs, resolver, cfg, process.NewDetector(log), git, log)
	if err != nil {
		return err
	}
	publisher := publish.New(fs, git, log)

	root := cli.NewRootCommand(store, publisher, cli.NewPromptUI(), stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}
