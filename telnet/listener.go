/*
 * S390 - Remote console listener.
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

package telnet

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	config "github.com/rcornwell/S390/config/configparser"
	"github.com/rcornwell/S390/emu/core"
)

type Server struct {
	wg       sync.WaitGroup
	listener net.Listener
	shutdown chan struct{}
	sys      *core.Core
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
}

// Address from CONSOLE configuration option.
var consolePort string

func init() {
	config.RegisterOption("CONSOLE", setPort)
}

func setPort(_ uint16, value string, _ []config.Option) error {
	if value == "" {
		return errors.New("console requires a port")
	}
	if consolePort != "" {
		return fmt.Errorf("console port already set to %s", consolePort)
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		value = ":" + value
	}
	consolePort = value
	return nil
}

// Return configured console address, empty if none.
func Port() string {
	return consolePort
}

// Start a console server on address.
func Start(address string, sys *core.Core) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on address %s: %w", address, err)
	}

	s := &Server{
		listener: listener,
		shutdown: make(chan struct{}),
		sys:      sys,
		conns:    map[net.Conn]struct{}{},
	}
	slog.Info("Console server started", "address", listener.Addr().String())
	s.wg.Add(1)
	go s.acceptConnections()
	return s, nil
}

// Address server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Accept a connection.
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			slog.Debug("Console accept failed", "error", err)
			continue
		}
		slog.Info("Console connection", "remote", conn.RemoteAddr().String())
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handleClient(conn, s.sys)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// Stop server and close any clients.
func (s *Server) Stop() {
	close(s.shutdown)
	s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for console connections to finish.")
	}
}
