package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/launcher"
	"github.com/modelserving/tgi-container-tests/runtime"
	"github.com/modelserving/tgi-container-tests/servicedef"
	"github.com/modelserving/tgi-container-tests/tgitests"
)

func main() {
	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	specs, err := params.serviceSpecs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid service configuration: %s\n", err)
		os.Exit(1)
	}

	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Container runtime error: %s\n", err)
		os.Exit(1)
	}

	mainLogger := framework.NullLogger()
	if params.debugAll {
		mainLogger = log.New(os.Stdout, "", log.LstdFlags)
	}

	testLogger := framework.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	ctx := context.Background()
	var allResults framework.Results

	for _, spec := range specs {
		fmt.Printf("Launching service %s (model %s)\n", spec.Service, spec.Model)
		results, err := runServiceSuite(ctx, rt, spec, params, mainLogger, testLogger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Service error: %s\n", err)
			os.Exit(1)
		}
		allResults.Append(results)
	}

	fmt.Println()
	framework.PrintResults(os.Stdout, allResults)
	if !allResults.OK() {
		os.Exit(1)
	}
}

func runServiceSuite(
	ctx context.Context,
	rt runtime.ContainerRuntime,
	spec servicedef.ServiceSpec,
	params commandParams,
	mainLogger framework.Logger,
	testLogger framework.TestLogger,
) (framework.Results, error) {
	handle, err := launcher.Launch(ctx, rt, spec, launcher.Options{
		BaseImage:            params.baseImage,
		Devices:              params.devices,
		HealthTimeoutSeconds: params.timeoutSeconds,
		Logger:               mainLogger,
	})
	if err != nil {
		return framework.Results{}, err
	}
	defer handle.Close()

	return tgitests.RunTestSuite(handle, spec, params.concurrency, params.filters.AsFilter, testLogger), nil
}
