package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/app"
	"github.com/Meesho/BharatMLStack/choreographer/internal/application"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/config"
	"github.com/spf13/cobra"
)

type engineBuilder func(config.Env) (*application.Engine, func(), error)

// cli holds the state shared by every subcommand.
type cli struct {
	out     io.Writer
	timeout time.Duration
	build   engineBuilder
	env     config.Env
	engine  *application.Engine
	cleanup func()
}

func newCLI(out io.Writer) *cli {
	return &cli{out: out, build: app.BuildEngine}
}

// execute runs one command line. Backend connections opened by the command
// are closed whether it succeeds or not.
func (c *cli) execute(args []string, stderr io.Writer) error {
	defer c.close()
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetErr(stderr)
	return root.Execute()
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "choreoctl",
		Short:        "Operate choreographer workflows directly against the document store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "score" {
				return nil
			}
			return c.connect()
		},
	}
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "deadline for each command")

	root.AddCommand(
		c.seedCommand(),
		c.readyCommand(),
		c.acquireCommand(),
		c.renewCommand(),
		c.releaseCommand(),
		c.updateCommand(),
		c.assignCommand(),
		c.notifyCommand(),
		c.finalizeCommand(),
		c.getCommand(),
		c.scoreCommand(),
		c.watchCommand(),
	)
	return root
}

func (c *cli) connect() error {
	env, err := config.Load()
	if err != nil {
		return err
	}
	engine, cleanup, err := c.build(env)
	if err != nil {
		return err
	}
	c.env, c.engine, c.cleanup = env, engine, cleanup
	return nil
}

func (c *cli) close() {
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
}

func (c *cli) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readFile reads path, or stdin when path is "-".
func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
