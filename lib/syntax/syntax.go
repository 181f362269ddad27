// Copyright 2021 Silvio Böhler
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

package syntax

import (
	"os"

	"github.com/sboehler/kasse/lib/syntax/directives"
	"github.com/sboehler/kasse/lib/syntax/parser"
)

var _ error = Error{}

type Error = directives.Error

type Parser = parser.Parser

// ParseFile reads and parses the given file. Like Parser.ParseFile, it
// returns the directives which parsed successfully along with the combined
// errors of those which did not.
func ParseFile(file string) (directives.File, error) {
	text, err := os.ReadFile(file)
	if err != nil {
		return directives.File{}, err
	}
	return ParseText(string(text), file)
}

// ParseText parses text as if it was the content of file.
func ParseText(text, file string) (directives.File, error) {
	return parser.New(text, file).ParseFile()
}
