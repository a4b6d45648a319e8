package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/servicedef"
)

const (
	defaultTimeoutSeconds = 60
	defaultConcurrency    = 4
)

type commandParams struct {
	service         string
	model           string
	trustRemoteCode bool
	servicesFile    string
	baseImage       string
	devices         stringList
	timeoutSeconds  int
	concurrency     int
	filters         framework.RegexFilters
	debug           bool
	debugAll        bool
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.service, "service", "", "name of the service configuration to test")
	fs.StringVar(&c.model, "model", "", "hub model id or local model path")
	fs.BoolVar(&c.trustRemoteCode, "trust-remote-code", false, "pass --trust-remote-code to the launched service")
	fs.StringVar(&c.servicesFile, "services", "", "YAML file listing service configurations (alternative to -service/-model)")
	fs.StringVar(&c.baseImage, "image", "", "base image tag (defaults to $DOCKER_IMAGE)")
	fs.Var(&c.devices, "device", "host device to bind into the container (repeatable)")
	fs.IntVar(&c.timeoutSeconds, "timeout", defaultTimeoutSeconds, "seconds to wait for each service to become ready")
	fs.IntVar(&c.concurrency, "concurrency", defaultConcurrency, "number of concurrent requests in the load tests")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	if c.servicesFile == "" && (c.service == "" || c.model == "") {
		fmt.Fprintln(os.Stderr, "either -services, or both -service and -model, are required")
		fs.Usage()
		return false
	}
	if c.servicesFile != "" && (c.service != "" || c.model != "") {
		fmt.Fprintln(os.Stderr, "-services cannot be combined with -service/-model")
		fs.Usage()
		return false
	}
	return true
}

func (c *commandParams) serviceSpecs() ([]servicedef.ServiceSpec, error) {
	if c.servicesFile != "" {
		return servicedef.LoadServicesFile(c.servicesFile)
	}
	spec := servicedef.ServiceSpec{
		Service:         c.service,
		Model:           c.model,
		TrustRemoteCode: c.trustRemoteCode,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return []servicedef.ServiceSpec{spec}, nil
}

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

// Set is called by the command line parser
func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
