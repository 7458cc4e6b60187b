/*
 * S390 - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	reader "github.com/rcornwell/S390/command/reader"
	config "github.com/rcornwell/S390/config/configparser"
	sysconfig "github.com/rcornwell/S390/config/sysconfig"
	telnet "github.com/rcornwell/S390/telnet"
	debug "github.com/rcornwell/S390/util/debug"
	logger "github.com/rcornwell/S390/util/logger"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "S390.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Log debug to console")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logOut io.Writer
	if *optLogFile != "" {
		file, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error("Unable to create log file", "file", *optLogFile, "error", err)
			os.Exit(1)
		}
		defer file.Close()
		logOut = file
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	handler := logger.NewHandler(logOut, os.Stderr, &slog.HandlerOptions{Level: programLevel}, *optDebug)
	Logger := slog.New(handler)
	slog.SetDefault(Logger)

	Logger.Info("S390 Started")

	// The default configuration file is optional.
	_, err := os.Stat(*optConfig)
	switch {
	case err == nil:
		if err := config.LoadConfigFile(*optConfig); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	case getopt.IsSet("config"):
		Logger.Error("Configuration file can't be found", "file", *optConfig)
		os.Exit(1)
	default:
		Logger.Info("No configuration file, using defaults")
	}

	sys, err := sysconfig.Build(sysconfig.Get())
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	// CPUs idle until the console asks them to do something.
	if err := sys.Start(context.Background(), nil); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	// Remote operator console if configured.
	var server *telnet.Server
	if port := telnet.Port(); port != "" {
		server, err = telnet.Start(port, sys)
		if err != nil {
			Logger.Error(err.Error())
			sys.Stop()
			os.Exit(1)
		}
	}

	reader.ConsoleReader(sys)

	if server != nil {
		server.Stop()
	}
	sys.Stop()
	_ = sys.Storage().Close()
	if err := debug.Close(); err != nil {
		Logger.Error(err.Error())
	}
	Logger.Info("S390 stopped.")
}
