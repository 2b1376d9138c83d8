package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSKU(t *testing.T) {
	tests := []struct {
		name    string
		sku     string
		wantErr bool
	}{
		{"valid", "RE-VRC-24-1234", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"bad characters", "RE_VRC!", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSKU(tt.sku)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePeerName(t *testing.T) {
	assert.NoError(t, ValidatePeerName("Head Referee"))
	assert.Error(t, ValidatePeerName(""))
}

func TestValidatePassphrase(t *testing.T) {
	assert.NoError(t, ValidatePassphrase("correct horse battery staple"))
	assert.Error(t, ValidatePassphrase("short"))
	assert.Error(t, ValidatePassphrase(""))
}
