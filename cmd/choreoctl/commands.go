package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	redisadapter "github.com/Meesho/BharatMLStack/choreographer/internal/adapters/redis"
	"github.com/Meesho/BharatMLStack/choreographer/internal/application"
	"github.com/Meesho/BharatMLStack/choreographer/internal/complexity"
	"github.com/Meesho/BharatMLStack/choreographer/internal/graph"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (c *cli) seedCommand() *cobra.Command {
	var workflowID, definitionPath, executorsPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the meta and state documents for a workflow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readFile(definitionPath)
			if err != nil {
				return err
			}
			def, err := graph.Parse(data)
			if err != nil {
				return err
			}
			req := application.SeedRequest{WorkflowID: workflowID, Definition: def}
			if executorsPath != "" {
				raw, err := readFile(executorsPath)
				if err != nil {
					return err
				}
				if err := yaml.Unmarshal(raw, &req.Executors); err != nil {
					return fmt.Errorf("parse executors: %w", err)
				}
			}
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.Seed(ctx, req)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow id")
	cmd.Flags().StringVar(&definitionPath, "definition", "", "state machine definition file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&executorsPath, "executors", "", "optional state -> executor map (JSON or YAML)")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("definition")
	return cmd
}

func (c *cli) readyCommand() *cobra.Command {
	var workflowID, state string
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "Report whether every upstream state has succeeded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.Ready(ctx, workflowID, state)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
	stateFlags(cmd, &workflowID, &state)
	return cmd
}

func (c *cli) acquireCommand() *cobra.Command {
	var (
		workflowID, state  string
		req                application.AcquireRequest
		skipReady, noSteal bool
	)
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Acquire the lease on a state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.WorkflowID, req.State = workflowID, state
			if skipReady {
				req.RequireReady = boolPtr(false)
			}
			if noSteal {
				req.AllowStealIfExpired = boolPtr(false)
			}
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.AcquireLease(ctx, req)
			return c.printOutcome(res, err)
		},
	}
	stateFlags(cmd, &workflowID, &state)
	cmd.Flags().StringVar(&req.Owner, "owner", "", "executor claiming the state")
	cmd.Flags().DurationVar(&req.TTL, "ttl", 0, "lease TTL (default from LEASE_DEFAULT_TTL_SECONDS)")
	cmd.Flags().StringVar(&req.Token, "token", "", "caller supplied lease token")
	cmd.Flags().BoolVar(&req.RequireOwnerMatch, "require-owner-match", false, "require owner to be the assigned executor")
	cmd.Flags().BoolVar(&skipReady, "skip-ready", false, "do not require upstream states to have succeeded")
	cmd.Flags().BoolVar(&noSteal, "no-steal", false, "do not take over an expired lease")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func (c *cli) renewCommand() *cobra.Command {
	var workflowID, state string
	var req application.RenewRequest
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Extend or heartbeat a held lease",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.WorkflowID, req.State = workflowID, state
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.RenewLease(ctx, req)
			return c.printOutcome(res, err)
		},
	}
	stateFlags(cmd, &workflowID, &state)
	cmd.Flags().StringVar(&req.Token, "token", "", "lease token")
	cmd.Flags().BoolVar(&req.TouchOnly, "touch-only", false, "record a heartbeat without extending the lease")
	cmd.Flags().DurationVar(&req.TTL, "ttl", 0, "replace the lease TTL")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (c *cli) releaseCommand() *cobra.Command {
	var workflowID, state string
	var req application.ReleaseRequest
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release a lease",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.WorkflowID, req.State = workflowID, state
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.ReleaseLease(ctx, req)
			return c.printOutcome(res, err)
		},
	}
	stateFlags(cmd, &workflowID, &state)
	cmd.Flags().StringVar(&req.Token, "token", "", "lease token")
	cmd.Flags().BoolVar(&req.Force, "force", false, "release regardless of token")
	cmd.Flags().BoolVar(&req.ClearOwner, "clear-owner", false, "also remove the executor assignment")
	return cmd
}

func (c *cli) updateCommand() *cobra.Command {
	var workflowID, state, status, outputPath string
	var req application.UpdateRequest
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Record a status change, output or error for a state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.WorkflowID, req.State = workflowID, state
			req.Status = ctypes.StateStatus(status)
			if outputPath != "" {
				data, err := readFile(outputPath)
				if err != nil {
					return err
				}
				req.Output = json.RawMessage(data)
			}
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.UpdateState(ctx, req)
			return c.printOutcome(res, err)
		},
	}
	stateFlags(cmd, &workflowID, &state)
	cmd.Flags().StringVar(&status, "status", "", "new status (running, done, succeeded, failed, cancelled)")
	cmd.Flags().StringVar(&req.LeaseToken, "token", "", "lease token the update is made under")
	cmd.Flags().StringVar(&outputPath, "output", "", "JSON output file (- for stdin)")
	cmd.Flags().StringVar(&req.ErrorMessage, "error", "", "error message to append")
	return cmd
}

func (c *cli) assignCommand() *cobra.Command {
	var workflowID, state, executor string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign (or with an empty --executor, unassign) the executor of a state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.AssignExecutor(ctx, application.AssignRequest{WorkflowID: workflowID, State: state, Executor: executor})
			return c.printOutcome(res, err)
		},
	}
	stateFlags(cmd, &workflowID, &state)
	cmd.Flags().StringVar(&executor, "executor", "", "executor id")
	return cmd
}

func (c *cli) notifyCommand() *cobra.Command {
	var req application.NotifyRequest
	var all bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Emit coordination events for the states downstream of --source (or the roots)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				req.IncludeOnlyReady = boolPtr(false)
			}
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.Notify(ctx, req)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
	cmd.Flags().StringVar(&req.WorkflowID, "workflow", "", "workflow id")
	cmd.Flags().StringVar(&req.SourceState, "source", "", "state that just completed; empty starts the workflow")
	cmd.Flags().BoolVar(&all, "all", false, "notify candidates that are not ready yet")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func (c *cli) finalizeCommand() *cobra.Command {
	var req application.FinalizeRequest
	var status string
	var keepOpen, keepExecutors bool
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Close the workflow and write its audit record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.StatusOverride = ctypes.WorkflowStatus(status)
			if keepOpen {
				req.CloseOpenStates = boolPtr(false)
			}
			if keepExecutors {
				req.DeleteExecutors = boolPtr(false)
			}
			ctx, cancel := c.context()
			defer cancel()
			res, err := c.engine.Finalize(ctx, req)
			return c.printOutcome(res, err)
		},
	}
	cmd.Flags().StringVar(&req.WorkflowID, "workflow", "", "workflow id")
	cmd.Flags().StringVar(&status, "status", "", "override the computed final status")
	cmd.Flags().StringVar(&req.Note, "note", "", "note stored on the audit record")
	cmd.Flags().BoolVar(&keepOpen, "keep-open", false, "leave non-terminal states untouched")
	cmd.Flags().BoolVar(&keepExecutors, "keep-executors", false, "do not request executor teardown")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func (c *cli) getCommand() *cobra.Command {
	var workflowID, state, kind string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a stored document (meta, state, output or audit)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context()
			defer cancel()
			var (
				v   any
				err error
			)
			switch kind {
			case "meta":
				v, err = c.engine.GetWorkflow(ctx, workflowID)
			case "state":
				v, err = c.engine.GetState(ctx, workflowID, state)
			case "output":
				v, err = c.engine.GetOutput(ctx, workflowID, state)
			case "audit":
				v, err = c.engine.GetAudit(ctx, workflowID)
			default:
				return fmt.Errorf("unknown document kind %q", kind)
			}
			if err != nil {
				return err
			}
			return c.print(v)
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow id")
	cmd.Flags().StringVar(&state, "state", "", "state name (state and output only)")
	cmd.Flags().StringVar(&kind, "kind", "meta", "meta, state, output or audit")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func (c *cli) scoreCommand() *cobra.Command {
	var profilePath, latency string
	var edges, maxTier int
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score capability profiles and recommend a model tier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readFile(profilePath)
			if err != nil {
				return err
			}
			profiles, err := complexity.ParseProfiles(data)
			if err != nil {
				return err
			}
			req := complexity.Request{Profiles: profiles, DependentEdges: edges, Latency: complexity.Latency(latency)}
			if cmd.Flags().Changed("max-tier") {
				req.MaxTier = &maxTier
			}
			res, err := complexity.NewScorer(complexity.DefaultTierCatalog()).Score(req)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "profile file, one profile or a list (YAML or JSON)")
	cmd.Flags().StringVar(&latency, "latency", "", "latency requirement: batch, interactive, critical or realtime")
	cmd.Flags().IntVar(&edges, "edges", 0, "dependency edges between the capabilities")
	cmd.Flags().IntVar(&maxTier, "max-tier", 0, "upper bound on the recommended tier")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func (c *cli) watchCommand() *cobra.Command {
	var executor string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print workflow events addressed to an executor (EVENTS_BACKEND=redis)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.env.EventsBackend != config.EventsBackendRedis {
				return fmt.Errorf("watch needs EVENTS_BACKEND=redis, got %q", c.env.EventsBackend)
			}
			client, err := redisadapter.NewClient(redisadapter.ClientConfig{
				Addr:     c.env.RedisAddr,
				Password: c.env.RedisPassword,
				DB:       c.env.RedisDB,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			events, err := redisadapter.Subscribe(ctx, client, c.env.EventsChannelPrefix, executor)
			if err != nil {
				return err
			}
			for event := range events {
				if err := c.print(event); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&executor, "executor", "", "executor id to listen for")
	_ = cmd.MarkFlagRequired("executor")
	return cmd
}

func stateFlags(cmd *cobra.Command, workflowID, state *string) {
	cmd.Flags().StringVar(workflowID, "workflow", "", "workflow id")
	cmd.Flags().StringVar(state, "state", "", "state name")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("state")
}

// printOutcome prints the result even when the engine also returned an
// error, so that a contention outcome is visible.
func (c *cli) printOutcome(res any, err error) error {
	if perr := c.print(res); perr != nil {
		return perr
	}
	return err
}

func boolPtr(v bool) *bool { return &v }

