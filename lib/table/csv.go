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

package table

import (
	"encoding/csv"
	"io"
	"strings"
)

// CSV renders a table as comma-separated values. Separator rows are
// skipped and indents are written as leading spaces.
type CSV struct {
	Round int32
}

var _ Renderer = CSV{}

// Render renders the table.
func (c CSV) Render(t *Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, row := range t.rows {
		if len(row) == 0 || row.IsSeparator() {
			continue
		}
		record := make([]string, len(row))
		for i, cell := range row {
			switch cell.Kind {
			case Text:
				record[i] = strings.Repeat(" ", cell.Indent) + cell.Text
			case Number:
				record[i] = cell.Number.StringFixed(c.Round)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
