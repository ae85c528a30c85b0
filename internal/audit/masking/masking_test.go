package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskReference(t *testing.T) {
	assert.Equal(t, "", MaskReference("  "))
	assert.Equal(t, "****", MaskReference("abc"))
	assert.Equal(t, "****7890", MaskReference("TX-1234567890"))
}

func TestMaskMetadata(t *testing.T) {
	ref := "BANK-REF-5555"
	masked := MaskMetadata(map[string]any{
		"transaction_id": "TX-1234567890",
		"amount":         int64(300),
		"entry":          map[string]any{"transaction_id": &ref},
		"":               "dropped",
	})

	assert.Equal(t, "****7890", masked["transaction_id"])
	assert.Equal(t, int64(300), masked["amount"])
	assert.Equal(t, map[string]any{"transaction_id": "****5555"}, masked["entry"])
	assert.NotContains(t, masked, "")
	assert.Nil(t, MaskMetadata(nil))
}
