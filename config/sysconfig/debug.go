/*
 * S390 - Debug configuration options
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

package sysconfig

import (
	"errors"
	"strings"

	config "github.com/rcornwell/S390/config/configparser"
	"github.com/rcornwell/S390/emu/cpu"
)

// Set debug options for a module.
func setDebug(_ uint16, module string, options []config.Option) error {
	var fn func(string) error
	switch strings.ToUpper(module) {
	case "CPU":
		fn = cpu.Debug
	default:
		return errors.New("debug option invalid: " + module)
	}

	if len(options) == 0 {
		return errors.New("debug " + module + " requires options")
	}
	for _, opt := range options {
		if opt.EqualOpt != "" {
			return errors.New("debug option can't have equals: " + opt.Name)
		}
		err := fn(strings.ToUpper(opt.Name))
		if err != nil {
			return err
		}
		for _, value := range opt.Value {
			err = fn(strings.ToUpper(*value))
			if err != nil {
				return err
			}
		}
	}
	return nil
}
