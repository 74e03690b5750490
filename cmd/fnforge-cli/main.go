// Command fnforge-cli drives a running fnforge service from the terminal:
// it deploys functions from YAML specs, follows build logs, submits runs
// and fetches their pod logs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fnforge/fnforge/pkg/api/client"
)

const pollInterval = 2 * time.Second

func main() {
	addr := flag.String("addr", envOr("FNFORGE_API_URL", "http://localhost:8080"), "fnforge API base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	c, err := client.New(*addr)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "deploy":
		err = cmdDeploy(ctx, c, args[1:])
	case "status":
		err = cmdStatus(ctx, c, args[1:])
	case "run":
		err = cmdRun(ctx, c, args[1:])
	case "logs":
		err = cmdLogs(ctx, c, args[1:])
	case "get":
		err = cmdGet(ctx, c, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: fnforge-cli [-addr URL] <command> [flags]

commands:
  deploy -f function.yaml [-watch]   build the function image
  status -project P -name N          show build state and log
  run    -project P -function N      submit a run
  logs   -project P -uid UID         fetch the pod log of a run
  get    -project P -name N          print the function spec
`)
}

func cmdDeploy(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	file := fs.String("f", "", "function spec YAML file")
	watch := fs.Bool("watch", false, "follow the build log until it finishes")
	withSDK := fs.String("with-sdk", "", "override SDK injection (true/false)")
	sdkVersion := fs.String("sdk-version", "", "pin the SDK version baked into the image")
	_ = fs.Parse(args)
	if *file == "" {
		return errors.New("deploy: -f is required")
	}

	fn, err := loadFunction(*file)
	if err != nil {
		return err
	}

	opts := client.DeployOptions{SDKVersion: *sdkVersion}
	if *withSDK != "" {
		v := *withSDK == "true"
		opts.WithSDK = &v
	}
	result, err := c.Deploy(ctx, fn, opts)
	if err != nil {
		return err
	}
	if result.Ready {
		fmt.Printf("function %s is ready, image %s\n", result.Function.Key(), result.Function.Spec.Image)
		return nil
	}
	fmt.Printf("build started for %s\n", result.Function.Key())
	if !*watch {
		return nil
	}
	return followBuild(ctx, c, fn.Meta.Project, fn.Meta.Name)
}

// followBuild polls the build status by byte offset, printing new log
// chunks until the build reaches a terminal state.
func followBuild(ctx context.Context, c *client.Client, project, name string) error {
	var offset int64
	for {
		status, err := c.BuilderStatus(ctx, project, name, offset, true)
		if err != nil {
			return err
		}
		if status.Log != "" {
			fmt.Print(status.Log)
			offset += int64(len(status.Log))
		}
		if status.State.Terminal() {
			if status.State != client.StateReady {
				return fmt.Errorf("build ended in state %s", status.State)
			}
			fmt.Printf("build ready, image %s\n", status.Image)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func cmdStatus(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	project := fs.String("project", "default", "project name")
	name := fs.String("name", "", "function name")
	offset := fs.Int64("offset", 0, "log byte offset")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("status: -name is required")
	}

	status, err := c.BuilderStatus(ctx, *project, *name, *offset, true)
	if err != nil {
		return err
	}
	fmt.Printf("state: %s\n", status.State)
	if status.Image != "" {
		fmt.Printf("image: %s\n", status.Image)
	}
	if status.Log != "" {
		fmt.Print(status.Log)
	}
	return nil
}

func cmdRun(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	project := fs.String("project", "default", "project name")
	function := fs.String("function", "", "function to run")
	handler := fs.String("handler", "", "handler override")
	_ = fs.Parse(args)
	if *function == "" {
		return errors.New("run: -function is required")
	}

	resp, err := c.SubmitRun(ctx, *project, *function, client.RunSpec{Handler: *handler}, nil)
	if err != nil {
		return err
	}
	fmt.Printf("run %s submitted, pod %s in %s\n", resp.Run.Meta.UID, resp.Pod, resp.Namespace)
	return nil
}

func cmdLogs(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	project := fs.String("project", "default", "project name")
	uid := fs.String("uid", "", "run UID")
	_ = fs.Parse(args)
	if *uid == "" {
		return errors.New("logs: -uid is required")
	}

	data, err := c.RunLogs(ctx, *project, *uid)
	if err != nil {
		return err
	}
	_, _ = os.Stdout.Write(data)
	return nil
}

func cmdGet(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	project := fs.String("project", "default", "project name")
	name := fs.String("name", "", "function name")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("get: -name is required")
	}

	fn, err := c.GetFunction(ctx, *project, *name)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(fn)
	if err != nil {
		return fmt.Errorf("encode function: %w", err)
	}
	_, _ = os.Stdout.Write(out)
	return nil
}

func loadFunction(path string) (client.Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.Function{}, fmt.Errorf("read function spec: %w", err)
	}
	var fn client.Function
	if err := yaml.Unmarshal(data, &fn); err != nil {
		return client.Function{}, fmt.Errorf("parse function spec: %w", err)
	}
	if strings.TrimSpace(fn.Meta.Name) == "" {
		return client.Function{}, fmt.Errorf("function spec %s has no name", path)
	}
	if fn.Meta.Project == "" {
		fn.Meta.Project = "default"
	}
	return fn, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
