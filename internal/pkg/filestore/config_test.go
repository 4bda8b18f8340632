package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{
			cfg:  Config{BucketName: "invoices", PublicBaseURL: "https://x.supabase.co/storage/v1/object/public/invoices/"},
			want: "https://x.supabase.co/storage/v1/object/public/invoices/invoices/a/2024_03_1.pdf",
		},
		{
			cfg:  Config{BucketName: "invoices", EndpointURL: "http://minio:9000/"},
			want: "http://minio:9000/invoices/invoices/a/2024_03_1.pdf",
		},
		{
			cfg:  Config{BucketName: "invoices", Region: "eu-west-1"},
			want: "https://invoices.s3.eu-west-1.amazonaws.com/invoices/a/2024_03_1.pdf",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.PublicURL("/invoices/a/2024_03_1.pdf"))
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{AccessKeyID: "a", SecretAccessKey: "b"}).Validate())
	assert.NoError(t, (&Config{AccessKeyID: "a", SecretAccessKey: "b", BucketName: "c"}).Validate())
}
