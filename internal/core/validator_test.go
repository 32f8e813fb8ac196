package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealbadge/internal/types"
)

type tierRequest struct {
	Tier string `json:"tier" validate:"required,tier"`
	Shop string `json:"shop,omitempty" validate:"omitempty,shop_domain"`
	Days int    `json:"days" validate:"gte=0"`
}

func TestValidateStruct(t *testing.T) {
	v := NewValidator(discardLogger())

	tests := []struct {
		name      string
		req       tierRequest
		wantCode  types.ErrorCode
		wantField string
	}{
		{"valid", tierRequest{Tier: "ADVANCED", Shop: testShop}, "", ""},
		{"lowercase tier", tierRequest{Tier: "basic"}, "", ""},
		{"missing tier", tierRequest{}, types.ErrCodeValidationMissingField, "tier"},
		{"unknown tier", tierRequest{Tier: "PLATINUM"}, types.ErrCodeValidationInvalidTier, "tier"},
		{"bad shop", tierRequest{Tier: "FREE", Shop: "demo shop/x"}, types.ErrCodeValidationInvalidField, "shop"},
		{"negative", tierRequest{Tier: "FREE", Days: -1}, types.ErrCodeValidationInvalidField, "days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.req)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, types.HasCode(err, tt.wantCode), "got %v", err)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			fields := appErr.Details["fields"].(map[string]any)
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateStruct_NonStruct(t *testing.T) {
	err := NewValidator(discardLogger()).ValidateStruct("not a struct")
	assert.True(t, types.HasCode(err, types.ErrCodeInternalUnexpected))
}
