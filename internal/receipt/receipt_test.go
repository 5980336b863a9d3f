package receipt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/receipt"
)

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{
			name: "Versioned",
			url:  "https://res.cloudinary.com/demo/image/upload/v1712345678/receipts/kvittering-1a2b.jpg",
			want: "receipts/kvittering-1a2b",
		},
		{
			name: "Unversioned",
			url:  "https://res.cloudinary.com/demo/image/upload/receipts/scan.pdf",
			want: "receipts/scan",
		},
		{
			name: "FolderStartingWithV",
			url:  "https://res.cloudinary.com/demo/image/upload/vipps/scan.png",
			want: "vipps/scan",
		},
		{
			name:    "NotCloudinary",
			url:     "https://example.com/receipts/scan.png",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := receipt.KeyFromURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
