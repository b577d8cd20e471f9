package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

// MaxPlausibleTokens rejects fat-fingered rows; no single allocation comes
// anywhere near the total supply.
const MaxPlausibleTokens = int64(1_000_000_000_000)

// ParseCSV parses address,wholeTokenAmount rows into checksum-address -> summed
// amount. Malformed rows are skipped with a warning, never aborting the import.
func ParseCSV(data []byte) (map[string]int64, []string, error) {
	delim := detectDelimiter(data)
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = delim

	totals := map[string]int64{}
	var warnings []string
	lineNo := 0
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, warnings, errors.Wrap(err, "read csv")
		}
		lineNo++
		if skipRow(row, lineNo) {
			continue
		}
		if len(row) < 2 {
			warnings = append(warnings, fmt.Sprintf("line %d: expected address,amount", lineNo))
			continue
		}

		addrHex := strings.TrimSpace(row[0])
		amountStr := strings.TrimSpace(row[1])
		if !common.IsHexAddress(addrHex) {
			warnings = append(warnings, fmt.Sprintf("line %d: invalid address %q", lineNo, addrHex))
			continue
		}
		amount, err := strconv.ParseInt(amountStr, 10, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: bad amount %q", lineNo, amountStr))
			continue
		}
		if amount <= 0 {
			warnings = append(warnings, fmt.Sprintf("line %d: non-positive amount %d", lineNo, amount))
			continue
		}
		if amount > MaxPlausibleTokens {
			warnings = append(warnings, fmt.Sprintf("line %d: implausible amount %d", lineNo, amount))
			continue
		}

		// Duplicate rows for one address sum up.
		totals[common.HexToAddress(addrHex).Hex()] += amount
	}
	return totals, warnings, nil
}

// detectDelimiter sniffs ';' vs ',' on the first non-empty line.
func detectDelimiter(data []byte) rune {
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if strings.Contains(l, ";") && !strings.Contains(l, ",") {
			return ';'
		}
		break
	}
	return ','
}

func skipRow(row []string, lineNo int) bool {
	if len(row) == 0 {
		return true
	}
	if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
		return true
	}
	if lineNo == 1 {
		head := strings.ToLower(strings.Join(row, ","))
		if strings.Contains(head, "address") && strings.Contains(head, "amount") {
			return true
		}
	}
	return false
}
