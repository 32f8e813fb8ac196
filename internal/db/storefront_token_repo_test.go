package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dealbadge/internal/storefront"
	"dealbadge/internal/types"
)

func TestStorefrontTokenRepository_Get(t *testing.T) {
	tests := []struct {
		name    string
		row     *mockRow
		want    string
		wantErr error
		code    types.ErrorCode
	}{
		{
			name: "found",
			row: &mockRow{scanFn: func(dest ...any) error {
				*dest[0].(*string) = "secret"
				return nil
			}},
			want: "secret",
		},
		{
			name:    "no row",
			row:     &mockRow{scanErr: pgx.ErrNoRows},
			wantErr: storefront.ErrTokenNotFound,
		},
		{
			name:    "empty token",
			row:     &mockRow{scanFn: func(dest ...any) error { return nil }},
			wantErr: storefront.ErrTokenNotFound,
		},
		{
			name: "driver error",
			row:  &mockRow{scanErr: errors.New("connection refused")},
			code: types.ErrCodeInternalDB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewStorefrontTokenRepository(db)
			db.On("QueryRow", mock.Anything, sqlContains("FROM storefront_tokens"), []any{testShop}).Return(tt.row)

			got, err := repo.GetStorefrontToken(context.Background(), testShop)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.code != "":
				require.Error(t, err)
				assert.True(t, types.HasCode(err, tt.code))
				assert.NotErrorIs(t, err, storefront.ErrTokenNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestStorefrontTokenRepository_Set(t *testing.T) {
	db := new(mockDBTX)
	repo := NewStorefrontTokenRepository(db)

	db.On("Exec", mock.Anything, sqlContains("INSERT INTO storefront_tokens (shop_domain, token, rotated_at)"), []any{testShop, "new-token"}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("disk full")).Once()

	require.NoError(t, repo.SetStorefrontToken(context.Background(), testShop, "new-token"))

	err := repo.SetStorefrontToken(context.Background(), testShop, "new-token")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}
