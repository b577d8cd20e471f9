package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVBasic(t *testing.T) {
	data := []byte("address,amount\n" + alice + ",1000\n" + bob + ",500\n")
	totals, warnings, err := ParseCSV(data)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, map[string]int64{alice: 1000, bob: 500}, totals)
}

func TestParseCSVSumsDuplicates(t *testing.T) {
	data := []byte(alice + ",100\n" + alice + ",250\n")
	totals, _, err := ParseCSV(data)
	require.NoError(t, err)
	assert.Equal(t, int64(350), totals[alice])
}

func TestParseCSVNormalizesChecksum(t *testing.T) {
	mixed := "0x52908400098527886E0F7030069857D2E4169EE7" // EIP-55 form
	data := []byte(strings.ToLower(mixed) + ",10\n")
	totals, _, err := ParseCSV(data)
	require.NoError(t, err)
	_, ok := totals[mixed]
	assert.True(t, ok, "keys must be checksum-normalized")
}

func TestParseCSVSkipsMalformedRows(t *testing.T) {
	data := []byte(strings.Join([]string{
		"not-an-address,100",
		alice + ",abc",
		bob + ",-5",
		alice + ",0",
		bob + ",9999999999999999",
		alice + ",42",
		"onlyonecolumn",
	}, "\n"))
	totals, warnings, err := ParseCSV(data)
	require.NoError(t, err, "malformed rows never abort the import")
	assert.Len(t, warnings, 6)
	assert.Equal(t, map[string]int64{alice: 42}, totals)
}

func TestParseCSVSemicolonDelimiter(t *testing.T) {
	data := []byte(alice + ";77\n")
	totals, _, err := ParseCSV(data)
	require.NoError(t, err)
	assert.Equal(t, int64(77), totals[alice])
}

func TestParseCSVEmptyAndBlankLines(t *testing.T) {
	totals, warnings, err := ParseCSV([]byte("\n\n  \n"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, totals)
}
