package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tbledger/apiserver/types"
)

func TestWriteTrialBalance(t *testing.T) {
	accounts := []types.Account{
		{ID: 1, Name: "account_1", Number: 30011, OpeningBalance: 0, Activity: 100, ClosingBalance: 100},
		{ID: 2, Name: "cash", Number: 1000, OpeningBalance: 50, Activity: -20, ClosingBalance: 30},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTrialBalance(&buf, accounts))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"Name", "Number", "Opening Balance", "Activity", "Closing Balance"}, rows[0])
	assert.Equal(t, []string{"account_1", "30011", "0", "100", "100"}, rows[1])
	assert.Equal(t, []string{"cash", "1000", "50", "-20", "30"}, rows[2])
	assert.Equal(t, []string{"Total", "", "50", "80", "130"}, rows[3])
}

func TestWriteTrialBalanceEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrialBalance(&buf, nil))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Total", rows[1][0])
}
