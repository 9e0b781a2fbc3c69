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

package tools

import (
	"bytes"
	"strings"
	"testing"
)

func TestDot(t *testing.T) {
	var out bytes.Buffer
	if err := Dot(fiesta(t), &out, "flow:confirm"); err != nil {
		t.Fatal(err)
	}
	s := out.String()

	if !strings.HasPrefix(s, "digraph G {") || !strings.HasSuffix(s, "}\n") {
		t.Fatal(s)
	}
	for _, want := range []string{
		`"command:order"`,
		`"flow:confirm" [shape="note", color="red"`,
		`"command:staff" -> "flow:complain" [ style="dashed" label="rescue" ]`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in\n%s", want, s)
		}
	}
}
