package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/urfave/cli/v2"

	"github.com/saiset-co/sai-lru/packager"
	"github.com/saiset-co/sai-lru/service"
)

func main() {
	app := &cli.App{
		Name:  "sai-lru",
		Usage: "persistent LRU cache function",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config; defaults and environment only when empty",
				EnvVars: []string{"SAI_LRU_CONFIG"},
			},
		},
		Action: runLambda,
		Commands: []*cli.Command{
			{
				Name:   "lambda",
				Usage:  "Serve invocations from the Lambda runtime",
				Action: runLambda,
			},
			{
				Name:   "serve",
				Usage:  "Serve invocations over HTTP on the configured address",
				Action: runServe,
			},
			{
				Name:      "invoke",
				Usage:     "Handle a single request given as an argument or on stdin",
				ArgsUsage: "[request-json]",
				Action:    runInvoke,
			},
			{
				Name:  "redeploy",
				Usage: "Publish the executable and current snapshot as a new function version",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "build the package and list its entries without uploading",
					},
				},
				Action: runRedeploy,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runLambda(c *cli.Context) error {
	svc, err := service.NewService(c.Context, c.String("config"))
	if err != nil {
		return err
	}

	if err := svc.Start(); err != nil {
		return err
	}

	lambda.StartWithOptions(svc.LambdaHandler(),
		lambda.WithContext(svc.Context()),
		lambda.WithEnableSIGTERM(func() { _ = svc.Stop() }),
	)
	return nil
}

func runServe(c *cli.Context) error {
	svc, err := service.NewService(c.Context, c.String("config"))
	if err != nil {
		return err
	}

	return svc.Serve()
}

func runInvoke(c *cli.Context) error {
	var payload []byte
	if c.Args().Present() {
		payload = []byte(c.Args().First())
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		payload = data
	}

	svc, err := service.NewService(c.Context, c.String("config"))
	if err != nil {
		return err
	}

	if err := svc.Start(); err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	out, err := svc.Invoke(c.Context, payload)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

func runRedeploy(c *cli.Context) error {
	svc, err := service.NewService(c.Context, c.String("config"), service.WithRedeploy())
	if err != nil {
		return err
	}

	if err := svc.Start(); err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	if c.Bool("dry-run") {
		archive, err := svc.Package(c.Context)
		if err != nil {
			return err
		}

		entries, err := packager.Extract(archive)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%d bytes\n", entry.Mode, entry.Name, len(entry.Data))
		}
		fmt.Fprintf(c.App.Writer, "total %d bytes\n", len(archive))
		return nil
	}

	if err := svc.Redeploy(c.Context); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "redeployed %s\n", svc.Config().Redeploy.FunctionName)
	return nil
}
