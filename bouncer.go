// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/okzk/sdnotify"

	"github.com/ergochat/bouncer/irc"
	"github.com/ergochat/bouncer/irc/flock"
	"github.com/ergochat/bouncer/irc/history"
	"github.com/ergochat/bouncer/irc/logger"
	"github.com/ergochat/bouncer/irc/mkcerts"
)

// set via linker flags, either by make or by goreleaser:
var commit = ""  // git hash
var version = "" // tagged version

var exitSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

func fileDoesNotExist(file string) bool {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return true
	}
	return false
}

// implements the `bouncer mkcerts` command
func doMkcerts(configFile string, quiet bool) {
	config, err := irc.LoadConfig(configFile)
	if err != nil {
		log.Fatal(err)
	}
	tlsConfig := config.Server.TLS
	if tlsConfig == nil || tlsConfig.Cert == "" || tlsConfig.Key == "" {
		log.Fatal("No TLS cert and key are configured under server.tls")
	}
	if !(fileDoesNotExist(tlsConfig.Cert) && fileDoesNotExist(tlsConfig.Key)) {
		log.Fatalf("Preexisting TLS cert and/or key files: %s %s", tlsConfig.Cert, tlsConfig.Key)
	}
	if !quiet {
		log.Println("making self-signed certificate for", config.Server.Name)
	}
	if err := mkcerts.CreateCert("Ergo", config.Server.Name, tlsConfig.Cert, tlsConfig.Key); err != nil {
		log.Fatal("Could not create certificate: ", err.Error())
	}
	if !quiet {
		log.Printf("Certificate created at %s : %s\n", tlsConfig.Cert, tlsConfig.Key)
	}
}

func parsePort(arguments docopt.Opts, name string) int {
	port, err := strconv.Atoi(arguments[name].(string))
	if err != nil || port < 1 || port > 65535 {
		log.Fatalf("Invalid %s: %v", name, arguments[name])
	}
	return port
}

func main() {
	irc.SetVersionString(version, commit)
	usage := `bouncer.
Usage:
	bouncer <host> <port> <listen-port> [--conf <filename>] [--quiet]
	bouncer mkcerts --conf <filename> [--quiet]
	bouncer -h | --help
	bouncer --version
Options:
	--conf <filename>  Configuration file to use.
	--quiet            Only log errors when no configuration file is given.
	-h --help          Show this screen.
	--version          Show version.`

	arguments, _ := docopt.ParseArgs(usage, nil, irc.Ver)

	configFile, _ := arguments["--conf"].(string)
	quiet := arguments["--quiet"].(bool)

	if arguments["mkcerts"].(bool) {
		doMkcerts(configFile, quiet)
		return
	}

	var config *irc.Config
	if configFile != "" {
		var err error
		config, err = irc.LoadConfig(configFile)
		if err != nil {
			log.Fatal("Config file did not load successfully: ", err.Error())
		}
	} else {
		config = irc.DefaultConfig()
		if quiet {
			config.Logging = logger.DefaultConfig(logger.LogError)
		}
	}
	config.SetEndpoints(arguments["<host>"].(string), parsePort(arguments, "<port>"), parsePort(arguments, "<listen-port>"))
	if err := config.Postprocess(); err != nil {
		log.Fatal("Config is invalid: ", err.Error())
	}

	logman, err := logger.NewManager(config.Logging)
	if err != nil {
		log.Fatal("Logger did not load successfully:", err.Error())
	}

	code := run(config, logman)
	logman.Close()
	os.Exit(code)
}

// run wires up and runs the bouncer, returning the process exit code.
func run(config *irc.Config, logman *logger.Manager) int {
	logman.Info("bouncer", fmt.Sprintf("%s starting", irc.Ver))
	if strings.Contains(irc.Ver, "unreleased") {
		logman.Warning("bouncer", "You are currently running an unreleased version of the bouncer that may be unstable.")
	}

	flocker, err := flock.TryAcquireFlock(config.LockFile)
	if err != nil {
		logman.Error("bouncer", "Could not acquire lock file", config.LockFile, err.Error())
		return 1
	}
	defer flocker.Unlock()

	origin, err := irc.NewOrigin(&config.Origin, logman)
	if err != nil {
		logman.Error("bouncer", "Could not connect to origin", err.Error())
		return 1
	}
	defer origin.Close()

	server, err := irc.NewServer(&config.Server, logman)
	if err != nil {
		logman.Error("bouncer", "Could not start listener", err.Error())
		return 1
	}
	defer server.Close()

	bouncer := irc.NewBouncer(origin, logman)
	bouncer.AddSink("server", server)

	// a disabled recorder stays wired so that a rehash can enable it
	historySink := history.NewSink(config.History.BufferLength(), logman)
	historyBuffer := historySink.Buffer()
	bouncer.AddSink("history", historySink)

	if config.API.Enabled {
		status := func() irc.BouncerStatus {
			return irc.BouncerStatus{Origin: origin.Address(), Clients: server.Len()}
		}
		api := irc.NewAPI(&config.API, logman, status, historyBuffer)
		if err := api.Listen(); err != nil {
			logman.Error("bouncer", "Could not start API", err.Error())
			return 1
		}
		defer api.Close()
		bouncer.AddSink("api", api)
	}

	signals := make(chan os.Signal, len(exitSignals))
	signal.Notify(signals, exitSignals...)
	rehashSignal := make(chan os.Signal, 1)
	signal.Notify(rehashSignal, syscall.SIGHUP)

	result := make(chan error, 1)
	go func() {
		result <- bouncer.Run()
	}()

	sdnotify.Ready()
	defer sdnotify.Stopping()

	for {
		select {
		case err := <-result:
			logman.Error("bouncer", "Bounce loop ended", err.Error())
			return 1
		case sig := <-signals:
			logman.Info("bouncer", "Shutting down on signal", sig.String())
			return 0
		case <-rehashSignal:
			logman.Info("rehash", "Rehashing due to SIGHUP")
			sdnotify.Reloading()
			if err := irc.Rehash(config, logman, historyBuffer); err != nil {
				logman.Error("rehash", "Failed to rehash:", err.Error())
			} else {
				logman.Info("rehash", "Rehash completed successfully")
			}
			sdnotify.Ready()
		}
	}
}
