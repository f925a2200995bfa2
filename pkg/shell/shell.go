// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package shell executes external commands on behalf of srtctl, capturing
// their output and exit status.
package shell

import (
	"bytes"
	"os/exec"

	"github.com/pkg/errors"
)

// Result holds the captured outcome of an external command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecuteCommand runs name with args and captures stdout, stderr and the
// exit code. A non-zero exit code is reported through Result, not as an
// error; an error is returned only when the command could not be started.
func ExecuteCommand(name string, args ...string) (Result, error) {
	cmd := exec.Command(name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, errors.Wrapf(err, "failed to execute %q", name)
	}
	return res, nil
}
