/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package expr

import (
	"fmt"
	"time"
)

// SyntaxError means the source didn't parse.
type SyntaxError struct {
	Src string
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q: %v", e.Src, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// TimeoutError means an evaluation was interrupted for running too
// long.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evaluation timed out after %v", e.After)
}

// UndefinedError means an expression referenced a variable that
// wasn't in the environment, and the evaluator was strict.
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("undefined variable %q", e.Name)
}

// SandboxError means the source tried to reach something the
// evaluator won't expose.
type SandboxError struct {
	Token string
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("forbidden token %q", e.Token)
}
