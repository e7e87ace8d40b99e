package utils

import (
	"testing"
	"time"

	"tresorerie/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKey(t *testing.T) {
	at := time.Date(2026, time.August, 27, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "2026-08", PeriodKey(at))

	at = time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2027-01", PeriodKey(at))
}

func TestFormatEntityID(t *testing.T) {
	at := time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "CMD/2026/08/0001", FormatEntityID(EntityOrder, at, 1))
	assert.Equal(t, "PAY/2026/08/0042", FormatEntityID(EntityPaiement, at, 42))
	assert.Equal(t, "TRF/2026/08/12345", FormatEntityID(EntityTransfer, at, 12345))
}

func TestFormatEntityIDZeroPadding(t *testing.T) {
	at := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "FIN/2026/03/0007", FormatEntityID(EntityFunding, at, 7))
}

func TestParseEntityID(t *testing.T) {
	prefix, err := ParseEntityID("CMD/2026/08/0001")
	require.NoError(t, err)
	assert.Equal(t, EntityOrder, prefix)

	prefix, err = ParseEntityID("TRF/2026/08/0003")
	require.NoError(t, err)
	assert.Equal(t, EntityTransfer, prefix)
}

func TestParseEntityIDRejectsUnknown(t *testing.T) {
	for _, id := range []string{"", "CMD", "XYZ/2026/08/0001", "cmd/2026/08/0001"} {
		_, err := ParseEntityID(id)
		assert.ErrorIs(t, err, models.ErrInvalidIdentifier, id)
	}
}
