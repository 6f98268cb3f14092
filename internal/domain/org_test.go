package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrganization(t *testing.T) {
	now := time.Now()
	org := NewOrganization("org1", "  Acme Support ", now)

	assert.Equal(t, "org1", org.ID)
	assert.Equal(t, "Acme Support", org.Name)
	assert.Equal(t, now, org.CreatedAt)
}

func TestValidateOrganization(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		org     *Organization
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid organization",
			org:     &Organization{ID: "org1", Name: "Acme", CreatedAt: now},
			wantErr: false,
		},
		{
			name:    "nil organization",
			org:     nil,
			wantErr: true,
			errMsg:  "nil",
		},
		{
			name:    "missing ID",
			org:     &Organization{Name: "Acme", CreatedAt: now},
			wantErr: true,
			errMsg:  "ID",
		},
		{
			name:    "blank Name",
			org:     &Organization{ID: "org1", Name: "   ", CreatedAt: now},
			wantErr: true,
			errMsg:  "Name",
		},
		{
			name:    "Name too long",
			org:     &Organization{ID: "org1", Name: strings.Repeat("a", MaxOrganizationNameLength+1), CreatedAt: now},
			wantErr: true,
			errMsg:  "exceeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrganization(tt.org)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
